// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package main

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/deckhand/deckhand/internal/certs"
	"github.com/deckhand/deckhand/internal/xdg"
)

// Leaf names issued by certs generate.
const (
	usersLeaf   = "users"
	gatewayLeaf = "gateway"
)

// NewCertsCmd creates the certs subcommand.
func NewCertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "certs",
		Short: "Manage the certificates of the users transport",
	}
	cmd.AddCommand(newCertsGenerateCmd())
	return cmd
}

func newCertsGenerateCmd() *cobra.Command {
	var (
		dir        string
		deployment string
		hosts      []string
		newCA      bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Issue mutual TLS certificates for the users transport",
		Long: `Issue a "users" certificate for the users process and a "gateway"
certificate for the gateway, both signed by a private CA. An existing CA in
--dir is reused unless --new-ca is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				var err error
				if dir, err = xdg.CertsDir(); err != nil {
					return err
				}
			}
			ca, reused, err := loadOrCreateCA(dir, deployment, newCA)
			if err != nil {
				return err
			}
			users, err := ca.Issue(usersLeaf, hosts...)
			if err != nil {
				return err
			}
			gw, err := ca.Issue(gatewayLeaf, hosts...)
			if err != nil {
				return err
			}
			if err := certs.Save(dir, ca, users, gw); err != nil {
				return err
			}

			if reused {
				cmd.Printf("Reused CA %s\n", filepath.Join(dir, certs.CACertFile))
			} else {
				cmd.Printf("Created CA %s\n", filepath.Join(dir, certs.CACertFile))
			}
			for _, leaf := range []*certs.Leaf{users, gw} {
				cmd.Printf("Issued %s\n", filepath.Join(dir, leaf.CertFile()))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "output directory (default $XDG_CONFIG_HOME/deckhand/certs)")
	cmd.Flags().StringVar(&deployment, "deployment", "default", "deployment name recorded in the CA")
	cmd.Flags().StringSliceVar(&hosts, "host", nil, "extra DNS name or IP for the certificates (repeatable)")
	cmd.Flags().BoolVar(&newCA, "new-ca", false, "replace an existing CA")
	return cmd
}

func loadOrCreateCA(dir, deployment string, replace bool) (*certs.CA, bool, error) {
	if !replace {
		_, err := os.Stat(filepath.Join(dir, certs.CACertFile))
		switch {
		case err == nil:
			ca, err := certs.LoadCA(dir)
			return ca, true, err
		case !errors.Is(err, fs.ErrNotExist):
			return nil, false, oops.Code("CERT_CA_LOAD_FAILED").With("dir", dir).Wrap(err)
		}
	}
	ca, err := certs.GenerateCA(deployment)
	return ca, false, err
}
