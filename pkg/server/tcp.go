package server

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net"
	"strings"
	"sync"
	"time"
)

const (
	maxLineLength = 8192
	writeTimeout  = 10 * time.Second
)

// ServeTCP accepts telnet connections on ln until ctx is done, then
// closes the listener and every connection it accepted.
func ServeTCP(ctx context.Context, ln net.Listener, app *App, cfg Config) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			log.Printf("Accept error: %v", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			handleTCP(ctx, conn, app, cfg)
		}()
	}
}

// handleTCP runs one telnet connection. Output goes through the
// ConnManager queue to a buffered channel; this goroutine only reads.
func handleTCP(ctx context.Context, conn net.Conn, app *App, cfg Config) {
	send := func(text string) error {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_, err := conn.Write([]byte(telnetText(text)))
		return err
	}
	ch := newBufferedChannel("tcp", conn.RemoteAddr().String(), cfg.OutboundBuffer, send, conn.Close)
	if _, ok := app.OnNewConnection(ch); !ok {
		<-ch.Done()
		return
	}
	id := ch.ID()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		stop()
		app.OnClose(id)
		ch.Close()
		<-ch.Done()
		log.Printf("[%s] Connection closed from %s", id, ch.RemoteAddr())
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, maxLineLength), maxLineLength)
	for {
		if cfg.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(cfg.IdleTimeout))
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimRight(stripTelnet(scanner.Text()), "\r\n")
		app.OnData(id, line)
	}

	var ne net.Error
	if err := scanner.Err(); errors.As(err, &ne) && ne.Timeout() {
		log.Printf("[%s] Idle timeout", id)
	} else if err != nil && !errors.Is(err, net.ErrClosed) {
		log.Printf("[%s] read error: %v", id, err)
	}
}

// telnetText ends every line with CRLF as telnet clients expect.
func telnetText(text string) string {
	return strings.ReplaceAll(strings.TrimRight(text, "\n"), "\n", "\r\n") + "\r\n"
}

// stripTelnet removes telnet IAC command sequences and stray control
// characters from input.
func stripTelnet(s string) string {
	var buf strings.Builder
	i := 0
	for i < len(s) {
		if s[i] == 0xFF && i+2 < len(s) {
			// IAC + command + option
			i += 3
			continue
		}
		if s[i] == 0xFF && i+1 < len(s) {
			i += 2
			continue
		}
		if s[i] < 32 && s[i] != '\t' && s[i] != '\n' && s[i] != '\r' {
			i++
			continue
		}
		buf.WriteByte(s[i])
		i++
	}
	return buf.String()
}
