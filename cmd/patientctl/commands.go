package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"patient-registration/internal/rules"
	"patient-registration/pkg/client"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultServer = "http://localhost:8080"

var errInvalidInput = errors.New("registration rejected by local validation")

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("PATIENTCTL")
	v.AutomaticEnv()
	v.SetDefault("server", defaultServer)

	rootCmd := &cobra.Command{
		Use:          "patientctl",
		Short:        "Manage patient registrations from the command line",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("server", defaultServer, "Base URL of the registration server (env PATIENTCTL_SERVER)")
	_ = v.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))

	newClient := func() *client.Client {
		return client.New(v.GetString("server"))
	}

	rootCmd.AddCommand(
		listCmd(newClient),
		showCmd(newClient),
		createCmd(newClient),
		deleteCmd(newClient),
		rulesCmd(newClient),
	)
	return rootCmd
}

func listCmd(newClient func() *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered patients, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			patients, err := newClient().ListPatients(cmd.Context())
			if err != nil {
				return err
			}
			if len(patients) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No patients registered yet.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tPHONE\tREGISTERED")
			for _, p := range patients {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s %s\t%s\n",
					p.ID, p.FullName, p.Email, p.PhoneCountryCode, p.PhoneNumber, p.CreatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
}

func showCmd(newClient func() *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a single patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			c := newClient()
			p, err := c.GetPatient(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:         %d\n", p.ID)
			fmt.Fprintf(out, "Name:       %s\n", p.FullName)
			fmt.Fprintf(out, "Email:      %s\n", p.Email)
			fmt.Fprintf(out, "Phone:      %s %s\n", p.PhoneCountryCode, p.PhoneNumber)
			fmt.Fprintf(out, "Document:   %s\n", c.PhotoURL(p))
			fmt.Fprintf(out, "Registered: %s\n", p.CreatedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

func createCmd(newClient func() *client.Client) *cobra.Command {
	var in client.CreatePatientInput
	var photoPath string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new patient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fieldErrors, err := checkLocally(in, photoPath)
			if err != nil {
				return err
			}
			if len(fieldErrors) > 0 {
				printFieldErrors(cmd.ErrOrStderr(), fieldErrors)
				return errInvalidInput
			}

			f, err := os.Open(photoPath)
			if err != nil {
				return err
			}
			defer f.Close()
			in.Photo = f
			in.PhotoName = filepath.Base(photoPath)

			p, err := newClient().CreatePatient(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Patient registered successfully (id %d). A confirmation email has been sent.\n", p.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.FullName, "full-name", "", "Full name (letters and spaces)")
	cmd.Flags().StringVar(&in.Email, "email", "", "Email address (@gmail.com)")
	cmd.Flags().StringVar(&in.PhoneCountryCode, "country-code", "+598", "Phone country code")
	cmd.Flags().StringVar(&in.PhoneNumber, "phone", "", "Phone number (digits only)")
	cmd.Flags().StringVar(&photoPath, "photo", "", "Path to the JPG document photo")
	return cmd
}

func deleteCmd(newClient func() *client.Client) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			c := newClient()
			if !yes {
				p, err := c.GetPatient(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), p.FullName) {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
					return nil
				}
			}

			if err := c.DeletePatient(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Patient deleted successfully.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func rulesCmd(newClient func() *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Print the validation rules enforced by the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := newClient().Rules(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FIELD\tPATTERN\tMAX")
			for _, f := range table.Fields {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", f.Field, f.Pattern, f.MaxLength)
			}
			photo := table.DocumentPhoto
			fmt.Fprintf(tw, "%s\t%s\t%d bytes\n", photo.Field, strings.Join(photo.MimeTypes, ","), photo.MaxBytes)
			return tw.Flush()
		},
	}
}

// checkLocally applies the registration rules before anything is uploaded.
func checkLocally(in client.CreatePatientInput, photoPath string) (rules.FieldErrors, error) {
	engine, err := rules.NewEngine()
	if err != nil {
		return nil, err
	}

	candidate := rules.Candidate{
		FullName:         in.FullName,
		Email:            in.Email,
		PhoneCountryCode: in.PhoneCountryCode,
		PhoneNumber:      in.PhoneNumber,
	}

	if photoPath != "" {
		f, err := os.Open(photoPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		candidate.Photo, err = rules.SniffPhoto(filepath.Base(photoPath), info.Size(), f)
		if err != nil {
			return nil, err
		}
	}

	return engine.Check(candidate), nil
}

func printFieldErrors(w io.Writer, fieldErrors rules.FieldErrors) {
	fields := make([]string, 0, len(fieldErrors))
	for field := range fieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		fmt.Fprintf(w, "%s: %s\n", field, fieldErrors[field])
	}
}

func confirm(in io.Reader, out io.Writer, name string) bool {
	fmt.Fprintf(out, "Delete patient? This will permanently remove %s. [y/N]: ", name)
	answer, _ := bufio.NewReader(in).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid patient id %q", arg)
	}
	return id, nil
}
