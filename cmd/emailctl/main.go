// Command emailctl is the admin client of the email address service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-emailaddress/internal/config"
	"github.com/go-emailaddress/internal/domain"
	"github.com/go-emailaddress/internal/infrastructure/awscfg"
	"github.com/go-emailaddress/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-emailaddress/internal/infrastructure/jwt"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cl := &client{
		BaseURL:   envOr("EMAILCTL_API_URL", "http://localhost:3000"),
		Bearer:    envOr("EMAILCTL_BEARER", ""),
		OutFormat: envOr("EMAILCTL_OUTPUT", "text"),
		HTTP:      &http.Client{Timeout: 30 * time.Second},
	}

	root := &cobra.Command{
		Use:           "emailctl",
		Short:         "Admin client for the email address service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cl.BaseURL, "api-url", cl.BaseURL, "API base URL (env EMAILCTL_API_URL)")
	root.PersistentFlags().StringVar(&cl.Bearer, "bearer", cl.Bearer, "admin JWT (env EMAILCTL_BEARER)")
	root.PersistentFlags().StringVar(&cl.OutFormat, "output", cl.OutFormat, "output format: json|text")

	root.AddCommand(
		newSaveCmd(cl),
		newRequestCmd(cl),
		newVerifiedCmd(cl),
		newInvalidateCmd(cl),
		newVerifyCmd(cl),
		newTokenCmd(),
		newBootstrapCmd(),
	)
	return root
}

func newSaveCmd(cl *client) *cobra.Command {
	return &cobra.Command{
		Use:   "save <email-address>",
		Short: "Save an email address and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := cl.call(cmd.Context(), "save", http.MethodPost, "/v1/email-addresses",
				domain.SaveEmailAddressRequest{EmailAddress: args[0]})
			if err != nil {
				return err
			}
			cl.print(cmd.OutOrStdout(), body)
			return nil
		},
	}
}

func newRequestCmd(cl *client) *cobra.Command {
	var (
		template     string
		templateFile string
		templateKey  string
		validFor     time.Duration
		length       time.Duration
		base         string
	)
	cmd := &cobra.Command{
		Use:   "request <id>",
		Short: "Create a verification request and mail its tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			req := domain.CreateVerificationRequestBody{
				TemplateKey:            templateKey,
				TokenValidityEndDate:   time.Now().Add(validFor).UTC(),
				VerificationLength:     int64(length / time.Second),
				VerificationLengthBase: base,
			}
			switch {
			case templateFile != "":
				b, err := os.ReadFile(templateFile)
				if err != nil {
					return fmt.Errorf("read template: %w", err)
				}
				s := string(b)
				req.MessageTemplate = &s
			case cmd.Flags().Changed("template"):
				req.MessageTemplate = &template
			case templateKey == "":
				return fmt.Errorf("one of --template, --template-file or --template-key is required")
			}
			body, err := cl.call(cmd.Context(), "request", http.MethodPost,
				"/v1/email-addresses/"+strconv.FormatInt(id, 10)+"/verification-requests", req)
			if err != nil {
				return err
			}
			cl.print(cmd.OutOrStdout(), body)
			return nil
		},
	}
	cmd.Flags().StringVar(&template, "template", "", "inline HTML template with $acceptToken and $rejectToken")
	cmd.Flags().StringVar(&templateFile, "template-file", "", "read the template from a file")
	cmd.Flags().StringVar(&templateKey, "template-key", "", "key of a template stored in the template bucket")
	cmd.Flags().DurationVar(&validFor, "valid-for", 24*time.Hour, "how long the mailed tokens stay usable")
	cmd.Flags().DurationVar(&length, "length", 365*24*time.Hour, "length of the verified window")
	cmd.Flags().StringVar(&base, "base", string(domain.LengthBaseVerification), "window base: REQUEST_CREATION|VERIFICATION")
	return cmd
}

func newVerifiedCmd(cl *client) *cobra.Command {
	return &cobra.Command{
		Use:   "verified <id>",
		Short: "Show whether an email address is currently verified",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			body, err := cl.call(cmd.Context(), "verified", http.MethodGet,
				"/v1/email-addresses/"+strconv.FormatInt(id, 10)+"/verified", nil)
			if err != nil {
				return err
			}
			cl.print(cmd.OutOrStdout(), body)
			return nil
		},
	}
}

func newInvalidateCmd(cl *client) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <id>",
		Short: "Invalidate an email address and delete its record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			body, err := cl.call(cmd.Context(), "invalidate", http.MethodDelete,
				"/v1/email-addresses/"+strconv.FormatInt(id, 10), nil)
			if err != nil {
				return err
			}
			cl.print(cmd.OutOrStdout(), body)
			return nil
		},
	}
}

func newVerifyCmd(cl *client) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <token>",
		Short: "Present an accept or reject token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := cl.call(cmd.Context(), "verify", http.MethodPost, "/v1/verify/"+args[0], nil)
			if err != nil {
				return err
			}
			cl.print(cmd.OutOrStdout(), body)
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	var subject, role string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin JWT with JWT_PRIVATE_KEY_PATH",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			cfg.JWTPublicKeyPath = ""
			p, err := jwtinfra.NewProvider(cfg)
			if err != nil {
				return err
			}
			tok, err := p.Sign(subject, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "emailctl", "token subject")
	cmd.Flags().StringVar(&role, "role", domain.RoleAdmin, "token role")
	return cmd
}

func newBootstrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the DynamoDB tables configured in the environment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			awsCfg, err := awscfg.Load(ctx, cfg, cfg.AWSRegion)
			if err != nil {
				return err
			}
			client := dynamo.NewClient(awsCfg, cfg.AWSEndpointURL)
			dynamo.Bootstrap(ctx, client, cfg.DynamoTables)
			if err := dynamo.Ping(ctx, client, cfg.DynamoTables.EmailAddresses); err != nil {
				return fmt.Errorf("tables not ready: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
