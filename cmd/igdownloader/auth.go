package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"igdownloader/pkg/auth"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the scraping backend token",
	Long: `Manage the stored Apify API token.

Tokens are stored per profile in:
  - the system keychain, when available
  - an encrypted file in the user config directory otherwise

APIFY_API_TOKEN and the config file take precedence over stored tokens.`,
}

var setTokenCmd = &cobra.Command{
	Use:   "set-token [token]",
	Short: "Store the API token",
	Long: `Store the API token for the selected profile.

Without an argument the token is read from the terminal with echo disabled,
or from the first line of stdin when it is not a terminal.`,
	Example: `  # Interactive prompt
  igdownloader auth set-token

  # From a secret manager
  vault read -field=token secret/apify | igdownloader auth set-token`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSetToken,
}

var clearTokenCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored token",
	Args:  cobra.NoArgs,
	RunE:  runClearToken,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show where the token comes from",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(setTokenCmd)
	authCmd.AddCommand(clearTokenCmd)
	authCmd.AddCommand(statusCmd)
}

func runSetToken(cmd *cobra.Command, args []string) error {
	manager, err := credentialManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	var token string
	if len(args) > 0 {
		token = args[0]
	} else {
		auth.WriteTokenGuide(cmd.ErrOrStderr())
		token, err = readToken(cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
	}

	store, err := manager.Store(profile, token)
	if err != nil {
		return err
	}

	out.Success(fmt.Sprintf("Token stored for profile %q", profile))
	out.Info("Store", store)
	return nil
}

// readToken prompts with echo disabled on a terminal and reads one line otherwise
func readToken(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "API token: ")
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read token: %w", err)
		}
		return strings.TrimSpace(string(secret)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("no token provided")
	}
	return line, nil
}

func runClearToken(cmd *cobra.Command, args []string) error {
	manager, err := credentialManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	if err := manager.Delete(profile); err != nil {
		if errors.Is(err, auth.ErrCredentialsNotFound) {
			out.Warning("No stored token", profile)
			return nil
		}
		return err
	}

	out.Success(fmt.Sprintf("Token removed for profile %q", profile))
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	manager, err := credentialManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	out.Info("Profile", profile)
	out.Info("Stores", strings.Join(manager.StoreNames(), ", "))

	if env := os.Getenv("APIFY_API_TOKEN"); env != "" {
		out.Info("Environment", auth.MaskToken(env)+" (takes precedence)")
	}

	cred, store, err := manager.Retrieve(profile)
	if err != nil {
		out.Warning("No stored token", "run 'igdownloader auth set-token'")
		return nil
	}

	out.Info("Stored token", auth.MaskToken(cred.Token))
	out.Info("Stored in", store)
	out.Info("Last modified", cred.LastModified.Format("2006-01-02 15:04:05"))
	return nil
}
