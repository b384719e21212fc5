package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/sagarc03/oss"
	"github.com/sagarc03/oss/client"
	"github.com/sagarc03/oss/config"
	"github.com/sagarc03/oss/credentials"
	"github.com/sagarc03/oss/retry"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Manage credential profiles",
	Long: `Manage credential profiles in the profiles file.

A profile holds access keys together with the region and endpoint they
belong to. Select one with --profile or OSS_CREDENTIALS_PROFILE; without
either, the default profile is used when no keys are configured.

Profiles are stored in ~/.oss/profiles.yaml unless --profile-file is given.`,
}

var configureListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all profiles",
	Long: `List all profiles in the profiles file.

The default profile is marked with an asterisk (*).`,
	RunE: runConfigureList,
}

var configureAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a new profile",
	Long: `Add a new profile interactively.

You will be prompted for:
  - Region
  - Endpoint URL (optional, derived from the region when empty)
  - Access key ID
  - Access key secret
  - Whether to set as default

The endpoint is contacted with the new keys before saving.`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigureAdd,
}

var configureRemoveCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm"},
	Short:   "Remove a profile",
	Args:    cobra.ExactArgs(1),
	RunE:    runConfigureRemove,
}

var configureSetDefaultCmd = &cobra.Command{
	Use:   "set-default <name>",
	Short: "Set the default profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigureSetDefault,
}

var configureShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show profile details",
	Long: `Show details for a profile.

If no name is provided, shows the default profile.
Secrets are hidden by default; use --show-secrets to reveal them.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigureShow,
}

var showSecrets bool

func init() {
	configureCmd.AddCommand(configureListCmd)
	configureCmd.AddCommand(configureAddCmd)
	configureCmd.AddCommand(configureRemoveCmd)
	configureCmd.AddCommand(configureSetDefaultCmd)
	configureCmd.AddCommand(configureShowCmd)

	configureShowCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "show secret values")
	configureListCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "show secret values")
}

// profilePath returns --profile-file, or the default location.
func profilePath(ctx context.Context) string {
	if cfg, err := config.FromContext(ctx); err == nil && cfg.Credentials.ProfileFile != "" {
		return cfg.Credentials.ProfileFile
	}
	return credentials.DefaultProfilePath()
}

func runConfigureList(cmd *cobra.Command, _ []string) error {
	file, err := credentials.LoadProfileFile(profilePath(cmd.Context()))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load profiles: %w", err)
	}

	if file == nil || len(file.Profiles) == 0 {
		fmt.Println("No profiles configured.")
		fmt.Println("Run 'ossctl configure add <name>' to create one.")
		return nil
	}

	def, err := file.GetDefaultProfile()
	if err != nil {
		return err
	}
	return getFormatter().FormatProfileList(cmd.OutOrStdout(), file.Profiles, def.Name, showSecrets)
}

func runConfigureAdd(cmd *cobra.Command, args []string) error {
	name := args[0]
	path := profilePath(cmd.Context())

	file, err := credentials.LoadProfileFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load profiles: %w", err)
		}
		file = &credentials.ProfileFile{}
	}

	existing, _ := file.GetProfile(name)
	if existing != nil {
		prompt := promptui.Prompt{
			Label:     fmt.Sprintf("Profile '%s' already exists. Update it", name),
			IsConfirm: true,
		}
		if _, promptErr := prompt.Run(); promptErr != nil {
			fmt.Println("Cancelled.")
			return nil //nolint:nilerr // User cancelled, not an error
		}
	}

	regionPrompt := promptui.Prompt{
		Label:    "Region",
		Default:  defaultString(existing, func(p *credentials.ProfileEntry) string { return p.Region }),
		Validate: validateRegion,
	}
	region, err := regionPrompt.Run()
	if err != nil {
		return handlePromptError(err)
	}

	endpointPrompt := promptui.Prompt{
		Label:    "Endpoint URL (empty for the region default)",
		Default:  defaultString(existing, func(p *credentials.ProfileEntry) string { return p.Endpoint }),
		Validate: validateEndpoint,
	}
	endpoint, err := endpointPrompt.Run()
	if err != nil {
		return handlePromptError(err)
	}

	idPrompt := promptui.Prompt{
		Label: "Access Key ID",
		Validate: func(input string) error {
			if strings.TrimSpace(input) == "" {
				return errors.New("access key ID is required")
			}
			return nil
		},
	}
	accessKeyID, err := idPrompt.Run()
	if err != nil {
		return handlePromptError(err)
	}

	secretPrompt := promptui.Prompt{
		Label: "Access Key Secret",
		Mask:  '*',
	}
	accessKeySecret, err := secretPrompt.Run()
	if err != nil {
		return handlePromptError(err)
	}

	setAsDefault := len(file.Profiles) == 0 || (existing != nil && existing.Default)
	if !setAsDefault {
		defaultPrompt := promptui.Prompt{
			Label:     "Set as default profile",
			IsConfirm: true,
		}
		if _, promptErr := defaultPrompt.Run(); promptErr == nil {
			setAsDefault = true
		}
	}

	entry := credentials.ProfileEntry{
		Name:            name,
		Region:          strings.TrimSpace(region),
		Endpoint:        strings.TrimSuffix(strings.TrimSpace(endpoint), "/"),
		AccessKeyID:     strings.TrimSpace(accessKeyID),
		AccessKeySecret: accessKeySecret,
		Default:         setAsDefault,
	}

	fmt.Print("Testing connection... ")
	if connErr := testConnection(cmd.Context(), entry); connErr != nil {
		fmt.Println("FAILED")
		fmt.Printf("Warning: %v\n", connErr)

		continuePrompt := promptui.Prompt{
			Label:     "Save profile anyway",
			IsConfirm: true,
		}
		if _, promptErr := continuePrompt.Run(); promptErr != nil {
			fmt.Println("Cancelled.")
			return nil //nolint:nilerr // User cancelled, not an error
		}
	} else {
		fmt.Println("OK")
	}

	if existing != nil {
		err = file.UpdateProfile(entry)
	} else {
		err = file.AddProfile(entry)
	}
	if err != nil {
		return fmt.Errorf("add profile: %w", err)
	}

	if err := file.Save(path); err != nil {
		return fmt.Errorf("save profiles: %w", err)
	}

	if existing != nil {
		fmt.Printf("Profile '%s' updated.\n", name)
	} else {
		fmt.Printf("Profile '%s' added.\n", name)
	}
	if setAsDefault {
		fmt.Println("Set as default profile.")
	}
	return nil
}

func runConfigureRemove(cmd *cobra.Command, args []string) error {
	name := args[0]
	path := profilePath(cmd.Context())

	file, err := credentials.LoadProfileFile(path)
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}
	if _, err = file.GetProfile(name); err != nil {
		return err
	}

	prompt := promptui.Prompt{
		Label:     fmt.Sprintf("Remove profile '%s'", name),
		IsConfirm: true,
	}
	if _, promptErr := prompt.Run(); promptErr != nil {
		fmt.Println("Cancelled.")
		return nil //nolint:nilerr // User cancelled, not an error
	}

	if err := file.RemoveProfile(name); err != nil {
		return fmt.Errorf("remove profile: %w", err)
	}
	if err := file.Save(path); err != nil {
		return fmt.Errorf("save profiles: %w", err)
	}

	fmt.Printf("Profile '%s' removed.\n", name)
	return nil
}

func runConfigureSetDefault(cmd *cobra.Command, args []string) error {
	name := args[0]
	path := profilePath(cmd.Context())

	file, err := credentials.LoadProfileFile(path)
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}
	if err := file.SetDefault(name); err != nil {
		return err
	}
	if err := file.Save(path); err != nil {
		return fmt.Errorf("save profiles: %w", err)
	}

	fmt.Printf("Default profile set to '%s'.\n", name)
	return nil
}

func runConfigureShow(cmd *cobra.Command, args []string) error {
	file, err := credentials.LoadProfileFile(profilePath(cmd.Context()))
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}

	name := ""
	if len(args) > 0 {
		name = args[0]
	}

	p, err := file.GetProfile(name)
	if err != nil {
		return err
	}

	// An empty name resolved to the default profile
	isDefault := p.Default || name == ""
	return getFormatter().FormatProfileShow(cmd.OutOrStdout(), *p, isDefault, showSecrets)
}

func validateRegion(input string) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return errors.New("region is required")
	}
	if strings.ContainsAny(input, " /:") {
		return fmt.Errorf("invalid region %q", input)
	}
	return nil
}

func validateEndpoint(input string) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}
	u, err := url.Parse(input)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("URL must start with http:// or https://")
	}
	return nil
}

func defaultString(p *credentials.ProfileEntry, field func(*credentials.ProfileEntry) string) string {
	if p == nil {
		return ""
	}
	return field(p)
}

// testConnection sends one signed service request with the profile's keys.
// Any service response means the endpoint is reachable; only a rejected
// signature or unknown key is reported besides transport failures.
func testConnection(ctx context.Context, p credentials.ProfileEntry) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c, err := client.New(client.Config{Region: p.Region, Endpoint: p.Endpoint},
		client.WithCredentialsProvider(credentials.Static(p.AccessKeyID, p.AccessKeySecret, p.SecurityToken)),
	)
	if err != nil {
		return err
	}

	out, err := c.Execute(ctx, &oss.OperationInput{OpName: "ListBuckets", Method: http.MethodGet},
		func(o *client.Options) { o.Retryer = retry.Nop{} })
	if err == nil {
		_ = out.Close()
		return nil
	}

	var ossErr *oss.Error
	if errors.As(err, &ossErr) && ossErr.Kind == oss.KindService {
		switch ossErr.Code {
		case "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("credentials rejected: %s", ossErr.Code)
		}
		return nil
	}
	return fmt.Errorf("could not reach %s: %w", c.Endpoint(), err)
}

// handlePromptError handles promptui errors.
func handlePromptError(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) {
		fmt.Println("\nCancelled.")
		os.Exit(0)
	}
	if errors.Is(err, promptui.ErrAbort) {
		fmt.Println("Cancelled.")
		return nil
	}
	return err
}
