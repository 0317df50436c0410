// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/tomtom215/fieldsync/internal/auth"
	"github.com/tomtom215/fieldsync/internal/config"
)

var knownRoles = map[string]bool{
	auth.RoleViewer:   true,
	auth.RoleOperator: true,
	auth.RoleAdmin:    true,
}

// runToken mints an admin API token signed with the configured JWT secret:
//
//	fieldsync token -subject ops -tenant acme -roles operator
func runToken(sec *config.SecurityConfig, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(out)
	subject := fs.String("subject", "", "Token subject (required)")
	tenant := fs.String("tenant", sec.DefaultTenant, "Tenant the token is scoped to")
	roles := fs.String("roles", auth.RoleViewer, "Comma-separated roles: viewer, operator, admin")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if strings.TrimSpace(*subject) == "" {
		return fmt.Errorf("-subject is required")
	}
	if strings.TrimSpace(*tenant) == "" {
		return fmt.Errorf("-tenant is required")
	}
	var parsed []string
	for _, r := range strings.Split(*roles, ",") {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if !knownRoles[r] {
			return fmt.Errorf("unknown role %q", r)
		}
		parsed = append(parsed, r)
	}
	if len(parsed) == 0 {
		return fmt.Errorf("at least one role is required")
	}

	jwtManager, err := auth.NewJWTManager(sec)
	if err != nil {
		return err
	}
	token, err := jwtManager.GenerateToken(*subject, *tenant, parsed)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
