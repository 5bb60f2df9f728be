package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"

	"parallelyou/models"
	"parallelyou/routing"
)

// dnsHandler answers TXT queries like what-is-the-void.ai. with a persona reply
type dnsHandler struct {
	g *gateway
}

func newDNSHandler(g *gateway) *dnsHandler {
	return &dnsHandler{g: g}
}

// newDNSServer creates the UDP server for the configured port
func newDNSServer(g *gateway) *dns.Server {
	return &dns.Server{
		Addr:    fmt.Sprintf(":%d", g.cfg.Server.DNSPort),
		Net:     "udp",
		Handler: newDNSHandler(g),
	}
}

// dnsPrompt turns a query name into a prompt: the zone suffix is dropped and
// dashes become spaces
func dnsPrompt(qname, zone string) string {
	name := strings.TrimSuffix(dns.Fqdn(qname), ".")
	if zone = strings.TrimSuffix(dns.Fqdn(zone), "."); zone != "" {
		suffix := "." + zone
		switch {
		case strings.EqualFold(name, zone):
			name = ""
		case len(name) > len(suffix) && strings.EqualFold(name[len(name)-len(suffix):], suffix):
			name = name[:len(name)-len(suffix)]
		}
	}
	name = strings.ReplaceAll(name, ".", " ")
	return strings.TrimSpace(strings.ReplaceAll(name, "-", " "))
}

// splitTXT splits s into the 255-byte strings a TXT record can carry
func splitTXT(s string) []string {
	var out []string
	for i := 0; i < len(s); i += 255 {
		end := min(i+255, len(s))
		out = append(out, s[i:end])
	}
	return out
}

// ServeDNS implements dns.Handler
func (h *dnsHandler) ServeDNS(w dns.ResponseWriter, r *dns.Msg) {
	if !h.g.limiter.Allow(w.RemoteAddr().String()) {
		return
	}
	if len(r.Question) == 0 {
		return
	}

	m := new(dns.Msg)
	m.SetReply(r)
	m.Authoritative = true

	for _, q := range r.Question {
		if q.Qtype != dns.TypeTXT {
			continue
		}

		answer := h.answer(q.Name)
		m.Answer = append(m.Answer, &dns.TXT{
			Hdr: dns.RR_Header{
				Name:   q.Name,
				Rrtype: dns.TypeTXT,
				Class:  dns.ClassINET,
				Ttl:    60,
			},
			Txt: splitTXT(answer),
		})
	}

	if err := w.WriteMsg(m); err != nil {
		logrus.WithError(err).Warn("DNS reply failed")
	}
}

// answer runs one lookup under the hard DNS deadline
func (h *dnsHandler) answer(qname string) string {
	cfg := h.g.cfg.DNS
	prompt := dnsPrompt(qname, cfg.Zone)
	if prompt == "" {
		return "Ask a question: what-is-the-void." + strings.TrimSuffix(dns.Fqdn(cfg.Zone), ".")
	}

	req := models.ChatRequest{
		RequestID: newRequestID(),
		Transport: "dns",
		Prompt:    fmt.Sprintf("Answer in %d characters or less, no markdown formatting: %s", cfg.MaxChars, prompt),
	}
	if p, ok := h.g.personas.Get(cfg.Persona); ok {
		req.Persona = &p
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.g.cfg.DNSDeadline())
	defer cancel()

	completion, err := h.g.chat(ctx, req)
	if err != nil {
		return dnsError(err)
	}
	return truncate(completion.Text, cfg.MaxChars)
}

func dnsError(err error) string {
	var exhausted *routing.ExhaustedError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Request timed out"
	case errors.Is(err, routing.ErrConfiguration):
		return "Server configuration error: Missing API key"
	case errors.As(err, &exhausted):
		return "All AI models are currently unavailable"
	default:
		return "Error: " + err.Error()
	}
}
