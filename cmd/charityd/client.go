package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"os/exec"
	"time"

	"github.com/EhsanAmini770/charity-info-sub000/internal/api"
	"github.com/EhsanAmini770/charity-info-sub000/internal/config"
)

const (
	healthProbeTimeout = 500 * time.Millisecond
	serverStartTimeout = 3 * time.Second
	serverPollInterval = 100 * time.Millisecond
)

// withClient runs fn against the configured server. When the server address
// is loopback and nothing answers, a child `srv` process serves the call.
func withClient(cfg *config.Config, fn func(*api.Client) error) error {
	client := api.NewClient(cfg.APIURL)

	probeCtx, cancel := context.WithTimeout(context.Background(), healthProbeTimeout)
	_, probeErr := client.Health(probeCtx)
	cancel()
	if probeErr == nil {
		return fn(client)
	}
	if !isLoopbackURL(cfg.APIURL) || !isConnRefused(probeErr) {
		return probeErr
	}

	local, err := startLocalServer(cfg)
	if err != nil {
		return err
	}
	defer local.stop()
	if err := local.waitReady(client); err != nil {
		return err
	}
	return fn(client)
}

// localServer is a child `charityd srv` process owned by one CLI invocation.
type localServer struct {
	cmd  *exec.Cmd
	done chan struct{}
}

func startLocalServer(cfg *config.Config) (*localServer, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate charityd binary: %w", err)
	}
	cmd := exec.Command(exe, "srv")
	cmd.Env = append(os.Environ(),
		"CHARITY_DB="+cfg.DBPath,
		"CHARITY_API_URL="+cfg.APIURL,
		"CHARITY_UPLOADS_DIR="+cfg.Storage.UploadsDir,
	)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start local server: %w", err)
	}

	s := &localServer{cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(s.done)
	}()
	return s, nil
}

func (s *localServer) waitReady(client *api.Client) error {
	deadline := time.After(serverStartTimeout)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 4*serverPollInterval)
		_, err := client.Health(ctx)
		cancel()
		switch {
		case err == nil:
			return nil
		case !isConnRefused(err):
			// Something that is not charityd owns the port.
			return err
		}

		select {
		case <-s.done:
			return errors.New("local server exited during startup")
		case <-deadline:
			return errors.New("server did not start in time")
		case <-time.After(serverPollInterval):
		}
	}
}

// stop interrupts the child so it drains the scheduler, then kills it if it
// does not exit in time.
func (s *localServer) stop() {
	_ = s.cmd.Process.Signal(os.Interrupt)
	select {
	case <-s.done:
	case <-time.After(serverStartTimeout):
		_ = s.cmd.Process.Kill()
		<-s.done
	}
}

func isLoopbackURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func isConnRefused(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
