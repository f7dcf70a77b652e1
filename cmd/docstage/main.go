package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"docstage/internal/app"
	"docstage/internal/config"
	"docstage/internal/server"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func readConfig() (*config.Config, error) {
	paths, err := app.DefaultPaths()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(paths.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "add", "serve").
func newApp(operation string, opts app.Options) (*app.App, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.New(cfg, operation, opts)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// unlock asks for the passphrase when payloads are encrypted.
func unlock(a *app.App) error {
	if !a.Locked() {
		return nil
	}
	passphrase, err := readPassphrase("Passphrase: ")
	if err != nil {
		return err
	}
	if err := a.Unlock(passphrase); err != nil {
		return fmt.Errorf("unlocking payloads: %w", err)
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:          "docstage",
	Short:        "Local staging store for accreditation documents",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := app.DefaultPaths()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		instanceID := uuid.New().String()
		cfg := config.NewConfig(instanceID, paths.BaseDir)

		if err := config.Init(paths.ConfigFile, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", paths.ConfigFile)
		fmt.Printf("Instance ID: %s\n", instanceID)
		fmt.Printf("Base Dir:    %s\n", paths.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Instance ID: %s\n", cfg.InstanceID)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Database:    %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		switch cfg.Blobs.Type {
		case "s3":
			fmt.Printf("Blobs:       s3://%s/%s\n", cfg.Blobs.S3Bucket, cfg.Blobs.S3Prefix)
		default:
			fmt.Printf("Blobs:       %s %s\n", cfg.Blobs.Type, cfg.Blobs.Root)
		}
		fmt.Printf("Encryption:  %s\n", cfg.Encryption.Type)
		fmt.Printf("Server:      %s\n", cfg.Server.AddrOrDefault())
		return nil
	},
}

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List document collections and their partition fields",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("collections", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tDESCRIPTION\tKEY")
		for _, c := range a.Collections() {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name, c.DisplayName, strings.Join(c.PartitionFields, ", "))
		}
		return tw.Flush()
	},
}

var addCmd = &cobra.Command{
	Use:   "add COLLECTION PATH...",
	Short: "Stage files under a partition",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		recursive, _ := cmd.Flags().GetBool("recursive")
		keys, _ := cmd.Flags().GetStringArray("key")

		a, err := newApp("add", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		paths := make([]string, 0, len(args)-1)
		for _, p := range args[1:] {
			abs, err := filepath.Abs(p)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}
			paths = append(paths, abs)
		}

		inserted, collected, err := a.StageFiles(args[0], keys, paths, recursive)
		if err != nil {
			return fmt.Errorf("staging: %w", err)
		}

		for _, r := range inserted {
			fmt.Printf("%s  %s\n", r.ID, r.Name)
		}
		fmt.Printf("Staged %d file(s), %d already staged\n", len(inserted), collected-len(inserted))
		return nil
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls COLLECTION",
	Short: "List staged documents of a partition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, _ := cmd.Flags().GetStringArray("key")

		a, err := newApp("ls", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.List(args[0], keys)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No documents staged.")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTAGED\tSIZE\tTYPE\tNAME")
		for _, r := range records {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
				r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.SizeBytes, r.MimeType, r.Name)
		}
		return tw.Flush()
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm COLLECTION ID...",
	Short: "Remove staged documents by ID",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("rm", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		for _, id := range args[1:] {
			if err := a.Remove(args[0], id); err != nil {
				return err
			}
			fmt.Printf("Removed %s\n", id)
		}
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get COLLECTION ID",
	Short: "Write a staged document's payload to a file or stdout",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		if output == "" && term.IsTerminal(int(os.Stdout.Fd())) {
			return errors.New("refusing to write a payload to a terminal; use -o PATH or redirect stdout")
		}

		a, err := newApp("get", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		if err := unlock(a); err != nil {
			return err
		}

		if output == "" {
			_, err := a.Export(args[0], args[1], os.Stdout)
			return err
		}

		f, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		rec, err := a.Export(args[0], args[1], f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(output)
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %s (%d bytes) to %s\n", rec.Name, rec.SizeBytes, output)
		return nil
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete stored payloads no staged document references",
	Long:  "Delete stored payloads no staged document references.\nDo not run while another process is staging files.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("prune", app.Options{})
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Prune()
		if err != nil {
			return err
		}
		fmt.Printf("Referenced: %d  Stored: %d  Deleted: %d\n", res.Referenced, res.Stored, res.Deleted)
		return nil
	},
}

// encryption command
var encryptionCmd = &cobra.Command{
	Use:   "encryption",
	Short: "Manage payload encryption",
}

var encryptionInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the age key pair used to encrypt payloads",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		passphrase, err := readNewPassphrase()
		if err != nil {
			return err
		}
		if err := app.InitEncryption(cfg.Encryption, passphrase); err != nil {
			return err
		}

		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s\n", cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the staging API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		unlockFlag, _ := cmd.Flags().GetBool("unlock")

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp("serve", app.Options{Console: os.Stderr})
		if err != nil {
			return err
		}
		defer a.Close()

		if unlockFlag {
			if err := unlock(a); err != nil {
				return err
			}
		}
		if addr == "" {
			addr = a.Config().Server.AddrOrDefault()
		}

		srv := server.New(a.Service(), a.Logger(), server.Options{
			MaxFileSize: a.Config().Intake.MaxFileSizeOrDefault(),
		})
		return srv.ListenAndServe(ctx, addr)
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	encryptionCmd.AddCommand(encryptionInitCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(collectionsCmd)
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringArrayP("key", "k", nil, "Partition key value, repeated in field order")
	addCmd.Flags().BoolP("recursive", "r", false, "Recurse into subdirectories")
	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().StringArrayP("key", "k", nil, "Partition key value, repeated in field order")
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().StringP("output", "o", "", "Write the payload to this path instead of stdout")
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(encryptionCmd)
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (default from config)")
	serveCmd.Flags().Bool("unlock", false, "Prompt for the passphrase so encrypted payloads can be served")
}
