package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/osvaldoandrade/modelhub/internal/prompt"
	"github.com/osvaldoandrade/modelhub/pkg/api"
	"github.com/osvaldoandrade/modelhub/pkg/app"
	"github.com/osvaldoandrade/modelhub/pkg/config"
	"github.com/osvaldoandrade/modelhub/pkg/domain"
	"github.com/osvaldoandrade/modelhub/pkg/form"
)

func initCmd(g *globals, ui *ui) *cobra.Command {
	var (
		baseURL   string
		outputDir string
		cacheType string
		noPrompt  bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize CLI config",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultPath()
			f, err := config.LoadFile(path)
			if err != nil {
				return err
			}
			active := f.ResolveProfile(g.profile)
			prof := f.Profiles[active]

			baseURL = firstNonEmpty(baseURL, prof.BaseURL, config.DefaultBaseURL)
			outputDir = firstNonEmpty(outputDir, prof.OutputDir, ".")
			cacheType = firstNonEmpty(cacheType, prof.Cache.Type, "memory")

			if !noPrompt && term.IsTerminal(int(os.Stdin.Fd())) {
				p := prompt.New()
				ctx := cmd.Context()
				if baseURL, err = p.Input(ctx, form.InputConfig{Message: "Base URL", Default: baseURL}); err != nil {
					return err
				}
				if outputDir, err = p.Input(ctx, form.InputConfig{Message: "Output directory", Default: outputDir}); err != nil {
					return err
				}
				options := []string{"memory", "redis", "none"}
				idx, err := p.Select(ctx, form.SelectConfig{Message: "Descriptor cache", Options: options, DefaultIndex: indexOf(options, cacheType)})
				if err != nil {
					return err
				}
				cacheType = options[idx]
			}

			prof.BaseURL = strings.TrimSpace(baseURL)
			prof.OutputDir = strings.TrimSpace(outputDir)
			prof.Cache.Type = cacheType
			f.Profiles[active] = prof
			if f.CurrentProfile == "" || g.profile != "" {
				f.CurrentProfile = active
			}
			if err := f.Save(path); err != nil {
				return err
			}
			fmt.Printf("%s Initialized profile '%s' at %s\n", ui.ok("[OK]"), active, path)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "API base URL")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory for downloaded images")
	cmd.Flags().StringVar(&cacheType, "cache", "", "Descriptor cache (memory, redis, none)")
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Disable interactive prompts")
	return cmd
}

func authCmd(g *globals, ui *ui) *cobra.Command {
	auth := &cobra.Command{
		Use:   "auth",
		Short: "Manage the signed-in session",
	}

	var (
		email    string
		password string
		name     string
		google   string
		noPrompt bool
	)

	login := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, password, err := credentials(email, password, noPrompt)
			if err != nil {
				return err
			}
			application, err := g.app(cmd)
			if err != nil {
				return err
			}
			defer closeApp(application)

			spin := startSpinner("Signing in...")
			token, err := application.API.Login(cmd.Context(), email, password)
			spin.Stop()
			if err != nil {
				return err
			}
			return signIn(cmd, application, token, ui)
		},
	}
	login.Flags().StringVar(&email, "email", "", "Account email")
	login.Flags().StringVar(&password, "password", "", "Account password")
	login.Flags().BoolVar(&noPrompt, "no-prompt", false, "Disable interactive prompts")

	register := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, password, err := credentials(email, password, noPrompt)
			if err != nil {
				return err
			}
			application, err := g.app(cmd)
			if err != nil {
				return err
			}
			defer closeApp(application)

			spin := startSpinner("Creating account...")
			token, err := application.API.Register(cmd.Context(), api.Registration{Name: strings.TrimSpace(name), Email: email, Password: password})
			spin.Stop()
			if err != nil {
				return err
			}
			return signIn(cmd, application, token, ui)
		},
	}
	register.Flags().StringVar(&name, "name", "", "Display name")
	register.Flags().StringVar(&email, "email", "", "Account email")
	register.Flags().StringVar(&password, "password", "", "Account password")
	register.Flags().BoolVar(&noPrompt, "no-prompt", false, "Disable interactive prompts")

	googleCmd := &cobra.Command{
		Use:   "google",
		Short: "Sign in with a Google access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(google) == "" {
				return errors.New("--access-token is required")
			}
			application, err := g.app(cmd)
			if err != nil {
				return err
			}
			defer closeApp(application)

			spin := startSpinner("Signing in with Google...")
			token, err := application.API.GoogleLogin(cmd.Context(), strings.TrimSpace(google))
			spin.Stop()
			if err != nil {
				return err
			}
			return signIn(cmd, application, token, ui)
		},
	}
	googleCmd.Flags().StringVar(&google, "access-token", "", "Google OAuth access token")

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := g.app(cmd)
			if err != nil {
				return err
			}
			defer closeApp(application)
			if err := application.Auth.SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("%s Signed out of '%s'\n", ui.ok("[OK]"), application.Config.Name)
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := g.app(cmd)
			if err != nil {
				return err
			}
			defer closeApp(application)

			spin := startSpinner("Loading session...")
			s, err := application.Auth.Current(cmd.Context())
			spin.Stop()
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", ui.title("Profile:"), application.Config.Name)
			fmt.Printf("%s %s\n", ui.title("Base URL:"), application.Config.BaseURL)
			if s == nil {
				fmt.Printf("%s Not signed in\n", ui.info("[INFO]"))
				return nil
			}
			printSession(s, ui)
			return nil
		},
	}

	auth.AddCommand(login, register, googleCmd, logout, show)
	return auth
}

func signIn(cmd *cobra.Command, application *app.Application, token string, ui *ui) error {
	s, err := application.Auth.SignIn(cmd.Context(), token)
	if err != nil {
		return err
	}
	if pt, ok := application.Tokens.(*config.ProfileTokens); ok && s.User.Email != "" {
		_ = pt.SetEmail(s.User.Email)
	}
	fmt.Printf("%s Signed in as %s (profile '%s')\n", ui.ok("[OK]"), emptyOr(s.User.Email, s.User.ID), application.Config.Name)
	printSession(s, ui)
	return nil
}

func printSession(s *domain.Session, ui *ui) {
	fmt.Printf("%s %s\n", ui.title("User:"), emptyOr(s.User.Email, s.User.ID))
	fmt.Printf("%s %d\n", ui.title("Credits:"), s.User.Credits)
	sub := "none"
	if s.User.HasSubscription {
		sub = emptyOr(s.User.Plan, "active")
	}
	fmt.Printf("%s %s\n", ui.title("Subscription:"), sub)
	fmt.Printf("%s %s\n", ui.title("Token:"), ui.dim(maskToken(s.Token)))
	if !s.ExpiresAt.IsZero() {
		fmt.Printf("%s %s\n", ui.title("Expires:"), s.ExpiresAt.Local().Format("2006-01-02 15:04"))
	}
}

func credentials(email, password string, noPrompt bool) (string, string, error) {
	email = strings.TrimSpace(email)
	password = strings.TrimSpace(password)
	if email == "" && !noPrompt {
		reader := bufio.NewReader(os.Stdin)
		email = promptLine(reader, "Email")
	}
	if password == "" && !noPrompt {
		p, err := promptSecret("Password")
		if err != nil {
			return "", "", err
		}
		password = p
	}
	if email == "" || password == "" {
		return "", "", errors.New("email and password are required")
	}
	return email, password, nil
}

func promptLine(r *bufio.Reader, label string) string {
	fmt.Printf("%s: ", label)
	line, _ := r.ReadString('\n')
	return strings.TrimSpace(line)
}

func promptSecret(label string) (string, error) {
	fmt.Printf("%s: ", label)
	b, err := termReadPassword()
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func termReadPassword() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		return []byte(strings.TrimSpace(line)), err
	}
	return term.ReadPassword(fd)
}

func maskToken(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "<unset>"
	}
	if len(v) <= 8 {
		return "****"
	}
	return v[:4] + "..." + v[len(v)-4:]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func emptyOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func indexOf(options []string, v string) int {
	for i, o := range options {
		if o == v {
			return i
		}
	}
	return 0
}
