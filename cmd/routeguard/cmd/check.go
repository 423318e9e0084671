package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/routeguard/routeguard/internal/domain/access"
)

var (
	checkAuthorities        []string
	checkAuthenticated      bool
	checkRememberMe         bool
	checkFullyAuthenticated bool
)

var checkCmd = &cobra.Command{
	Use:   "check METHOD PATH",
	Short: "Resolve a single request and print the decision",
	Long: `Resolve a (method, path) request against the configured rule sources and
print the matched rule, the access requirement, and whether the given
caller would be allowed.

Examples:
  routeguard check GET /admin/users --authority ROLE_ADMIN --fully-authenticated
  routeguard check POST /api/things --authenticated`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := buildStack()
		if err != nil {
			return err
		}
		defer s.Close()

		sub := access.Subject{
			Authorities:        checkAuthorities,
			Authenticated:      checkAuthenticated || checkRememberMe || checkFullyAuthenticated,
			RememberMe:         checkRememberMe,
			FullyAuthenticated: checkFullyAuthenticated,
		}

		method, path := strings.ToUpper(args[0]), args[1]
		auth, err := s.resolver.Authorize(cmd.Context(), method, path, sub)
		if err != nil {
			return err
		}

		d := auth.Decision
		fmt.Printf("request:  %s %s\n", method, path)
		fmt.Printf("outcome:  %s\n", d.Outcome)
		if d.Pattern != "" {
			fmt.Printf("rule:     %s\n", d.Pattern)
		}
		if d.Matched() {
			fmt.Printf("requires: %s\n", d.Requirement)
		}
		fmt.Printf("reason:   %s\n", d.Reason)
		fmt.Printf("allowed:  %t\n", auth.Allowed)
		return nil
	},
}

func init() {
	checkCmd.Flags().StringArrayVar(&checkAuthorities, "authority", nil, "authority granted to the caller (repeatable)")
	checkCmd.Flags().BoolVar(&checkAuthenticated, "authenticated", false, "caller is authenticated")
	checkCmd.Flags().BoolVar(&checkRememberMe, "remember-me", false, "caller authenticated via persistent login")
	checkCmd.Flags().BoolVar(&checkFullyAuthenticated, "fully-authenticated", false, "caller logged in explicitly this session")
	rootCmd.AddCommand(checkCmd)
}
