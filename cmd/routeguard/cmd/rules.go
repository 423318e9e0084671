package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/routeguard/routeguard/internal/adapter/outbound/cel"
	"github.com/routeguard/routeguard/internal/domain/access"
	"github.com/routeguard/routeguard/internal/domain/antpath"
	"github.com/routeguard/routeguard/internal/service"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and import authorization rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the compiled rule set in specificity order",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := buildStack()
		if err != nil {
			return err
		}
		defer s.Close()

		snap, err := s.resolver.CompiledRules(cmd.Context())
		if err != nil {
			return err
		}
		if len(snap.Rules) == 0 {
			fmt.Println("no rules configured")
			return nil
		}
		for _, r := range snap.Rules {
			method := r.HTTPMethod
			if method == "" {
				method = "*"
			}
			fmt.Printf("%-8s %-40s %-12s %s\n", method, r.Pattern, r.Source, r.Access)
		}
		return nil
	},
}

// importEntry is one rule in a YAML import file. The access value accepts
// a single string or a list.
type importEntry struct {
	Pattern    string      `yaml:"pattern"`
	Access     accessValue `yaml:"access"`
	HTTPMethod string      `yaml:"http_method"`
}

// accessValue decodes a YAML scalar or sequence into a string list.
type accessValue []string

func (v *accessValue) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*v = accessValue{s}
		return nil
	case yaml.SequenceNode:
		var ss []string
		if err := node.Decode(&ss); err != nil {
			return err
		}
		*v = accessValue(ss)
		return nil
	default:
		return fmt.Errorf("access: expected string or list, got yaml kind %d", node.Kind)
	}
}

var rulesImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Load rule entries from a YAML file into the requestmap store",
	Long: `Load a YAML list of {pattern, access, http_method} entries into the
requestmap store. Patterns and access expressions are validated before
anything is written. Requires config_type RequestmapInstances.

After a successful import the compiled rule cache must be invalidated in
any running process (ClearCachedRules); a fresh process picks the entries
up on first resolution.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := buildStack()
		if err != nil {
			return err
		}
		defer s.Close()

		if s.store == nil {
			return errors.New("rules import requires security.config_type RequestmapInstances")
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read import file: %w", err)
		}
		var entries []importEntry
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("parse import file: %w", err)
		}

		evaluator, err := cel.NewEvaluator()
		if err != nil {
			return err
		}
		// Validate everything before the first write so a bad entry
		// cannot leave a partial import behind.
		for i, e := range entries {
			if err := antpath.ValidatePattern(e.Pattern); err != nil {
				return fmt.Errorf("entry %d: %w", i, err)
			}
			if len(e.Access) == 0 {
				return fmt.Errorf("entry %d (%q): access is required", i, e.Pattern)
			}
			if req := service.ParseAccess(e.Access); req.IsExpression() {
				if err := evaluator.ValidateExpression(req.Expression); err != nil {
					return fmt.Errorf("entry %d (%q): %w", i, e.Pattern, err)
				}
			}
		}

		for _, e := range entries {
			entry := &access.RequestmapEntry{
				Pattern:    e.Pattern,
				Access:     e.Access,
				HTTPMethod: e.HTTPMethod,
			}
			if err := s.store.SaveEntry(cmd.Context(), entry); err != nil {
				return err
			}
		}
		s.resolver.ClearCachedRules()

		fmt.Printf("imported %d rule entries\n", len(entries))
		return nil
	},
}

func init() {
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesImportCmd)
	rootCmd.AddCommand(rulesCmd)
}
