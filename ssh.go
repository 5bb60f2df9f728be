package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/term"

	"parallelyou/models"
)

// sshServer is a chat shell: the login name picks the persona and every line
// typed is a prompt
type sshServer struct {
	g      *gateway
	config *ssh.ServerConfig
	idle   time.Duration

	wg sync.WaitGroup
}

// newSSHServer loads the host key from hostKeyPath, or generates an ephemeral
// one when the path is empty
func newSSHServer(g *gateway, hostKeyPath string, idle time.Duration) (*sshServer, error) {
	signer, err := loadHostKey(hostKeyPath)
	if err != nil {
		return nil, err
	}

	config := &ssh.ServerConfig{NoClientAuth: true}
	config.AddHostKey(signer)

	return &sshServer{g: g, config: config, idle: idle}, nil
}

func loadHostKey(path string) (ssh.Signer, error) {
	if path == "" {
		_, key, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("ssh: failed to generate host key: %w", err)
		}
		logrus.Warn("No SSH host key configured, using an ephemeral key")
		return ssh.NewSignerFromKey(key)
	}

	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ssh: failed to read host key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(pem)
	if err != nil {
		return nil, fmt.Errorf("ssh: failed to parse host key %s: %w", path, err)
	}
	return signer, nil
}

// Serve accepts connections until ctx is cancelled, then waits for open
// sessions to finish
func (s *sshServer) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	logrus.WithField("addr", ln.Addr().String()).Info("SSH server listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			return fmt.Errorf("ssh: accept failed: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// idleConn pushes the deadline forward on every read and write
type idleConn struct {
	net.Conn
	timeout time.Duration
}

func (c *idleConn) Read(b []byte) (int, error) {
	_ = c.Conn.SetDeadline(time.Now().Add(c.timeout))
	return c.Conn.Read(b)
}

func (c *idleConn) Write(b []byte) (int, error) {
	_ = c.Conn.SetDeadline(time.Now().Add(c.timeout))
	return c.Conn.Write(b)
}

func (s *sshServer) handleConn(ctx context.Context, nConn net.Conn) {
	defer nConn.Close()

	// Cancellation must unblock sessions waiting in ReadLine.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			nConn.Close()
		case <-done:
		}
	}()

	remote := nConn.RemoteAddr().String()
	if !s.g.limiter.Allow(remote) {
		logrus.WithField("client", remote).Warn("SSH connection rate limited")
		return
	}

	var conn net.Conn = nConn
	if s.idle > 0 {
		conn = &idleConn{Conn: nConn, timeout: s.idle}
	}

	sconn, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		logrus.WithError(err).WithField("client", remote).Debug("SSH handshake failed")
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}

		channel, requests, err := newChannel.Accept()
		if err != nil {
			logrus.WithError(err).Debug("SSH channel accept failed")
			continue
		}
		go acceptSessionRequests(requests)

		s.session(ctx, sconn.User(), remote, channel)
	}
}

// acceptSessionRequests says yes to the requests an interactive client sends
// before it starts typing
func acceptSessionRequests(in <-chan *ssh.Request) {
	for req := range in {
		ok := req.Type == "shell" || req.Type == "pty-req" || req.Type == "window-change"
		if req.WantReply {
			_ = req.Reply(ok, nil)
		}
	}
}

// personaForUser maps an SSH login name to a preset persona
func (s *sshServer) personaForUser(user string) *models.Persona {
	if p, ok := s.g.personas.Get(strings.ReplaceAll(user, "_", " ")); ok {
		return &p
	}
	return nil
}

func (s *sshServer) session(ctx context.Context, user, remote string, channel ssh.Channel) {
	defer channel.Close()

	persona := s.personaForUser(user)
	terminal := term.NewTerminal(channel, "> ")

	if persona != nil {
		fmt.Fprintf(terminal, "[%s · %s]\n%s\n\n", persona.Name, persona.Universe, persona.Greeting)
	} else {
		fmt.Fprint(terminal, "Connected to the multiverse. Log in as a persona (ssh dvk-x@host) to talk to a resident.\n\n")
	}

	log := logrus.WithFields(logrus.Fields{"client": remote, "user": user})
	log.Info("SSH session started")

	for {
		line, err := terminal.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.WithError(err).Debug("SSH read failed")
			}
			break
		}

		prompt := strings.TrimSpace(line)
		switch {
		case prompt == "":
			continue
		case prompt == "/quit" || prompt == "/exit":
			fmt.Fprint(terminal, "Goodbye.\n")
			s.closeSession(channel, log)
			return
		case !s.g.limiter.Allow(remote):
			fmt.Fprint(terminal, "Too many requests, please slow down.\n")
			continue
		}

		fmt.Fprintln(terminal, s.reply(ctx, persona, prompt))
	}

	s.closeSession(channel, log)
}

func (s *sshServer) reply(ctx context.Context, persona *models.Persona, prompt string) string {
	completion, err := s.g.chat(ctx, models.ChatRequest{
		RequestID: newRequestID(),
		Transport: "ssh",
		Prompt:    prompt,
		Persona:   persona,
	})
	if err != nil {
		return dnsError(err)
	}
	return completion.Text
}

func (s *sshServer) closeSession(channel ssh.Channel, log *logrus.Entry) {
	status := struct{ Status uint32 }{0}
	_, _ = channel.SendRequest("exit-status", false, ssh.Marshal(&status))
	log.Info("SSH session ended")
}
