package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/trackhire/trackhire/internal/api"
	config "github.com/trackhire/trackhire/internal/config/trackctl"
	"github.com/trackhire/trackhire/internal/session"
)

const usage = `trackctl - trackhire command line client

Usage:
  trackctl login [-no-persist]   sign in and store a session
  trackctl whoami                show the signed-in identity
  trackctl status                show session state
  trackctl logout                end the session

Flags:
  -config path                   config file (default: none, env-driven)
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "trackctl:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("trackctl", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}

	mgr := session.NewManager(session.Config{
		BaseURL:      cfg.ServerURL,
		Store:        session.NewFileStore(cfg.TokenFile),
		RenewalFloor: cfg.RenewalFloor,
	})
	defer mgr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd := fs.Arg(0); cmd {
	case "login":
		return cmdLogin(ctx, mgr, fs.Args()[1:])
	case "whoami":
		return cmdWhoami(ctx, mgr)
	case "status":
		return cmdStatus(ctx, mgr)
	case "logout":
		return cmdLogout(ctx, mgr)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdLogin(ctx context.Context, mgr *session.Manager, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	noPersist := fs.Bool("no-persist", false, "do not store a refresh token")
	if err := fs.Parse(args); err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Email: ")
	email, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	email = strings.TrimSpace(email)

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return err
	}

	if err := mgr.Login(ctx, email, string(password), !*noPersist); err != nil {
		return err
	}
	fmt.Println("Signed in.")
	return nil
}

func cmdWhoami(ctx context.Context, mgr *session.Manager) error {
	if err := mgr.Restore(ctx); err != nil {
		return err
	}
	if mgr.State() != session.StateAuthenticated {
		return errors.New("not signed in")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mgr.BaseURL()+"/api/auth/me", nil)
	if err != nil {
		return err
	}
	resp, err := mgr.Client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	var id api.Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return err
	}
	fmt.Printf("%s (id %d)\n", id.Email, id.ID)
	return nil
}

func cmdStatus(ctx context.Context, mgr *session.Manager) error {
	_ = mgr.Restore(ctx)
	fmt.Println("state:", mgr.State())
	return nil
}

func cmdLogout(ctx context.Context, mgr *session.Manager) error {
	if err := mgr.Restore(ctx); err != nil {
		return err
	}
	if mgr.State() != session.StateAuthenticated {
		fmt.Println("Already signed out.")
		return nil
	}
	mgr.Logout(ctx)
	fmt.Println("Signed out.")
	return nil
}
