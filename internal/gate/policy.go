package gate

import (
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/memopsy/memopsy/internal/rbac"
)

//go:embed policy.yaml
var defaultPolicyYAML []byte

// ErrInvalidPolicy wraps every policy validation failure.
var ErrInvalidPolicy = errors.New("gate: invalid policy")

// APIRule maps an API path prefix and HTTP method to a required action on a module.
type APIRule struct {
	Prefix  string
	Module  rbac.Module
	Methods map[string]rbac.Action
}

// UIRule maps a UI path prefix to a required permission.
type UIRule struct {
	Prefix     string
	Permission rbac.Permission
}

// Policy is the declarative routing table the gate evaluates. It is
// configuration: the default is embedded and may be replaced by a file.
type Policy struct {
	SignInPath       string
	InactivePath     string
	UnauthorizedPath string
	RootPath         string
	PublicPrefixes   []string
	HomePath         string
	APIPrefix        string
	APIRules         []APIRule
	UIRules          []UIRule
}

type policyFile struct {
	SignInPath       string   `yaml:"signin_path"`
	InactivePath     string   `yaml:"inactive_path"`
	UnauthorizedPath string   `yaml:"unauthorized_path"`
	RootPath         string   `yaml:"root_path"`
	PublicPrefixes   []string `yaml:"public_prefixes"`
	HomePath         string   `yaml:"home_path"`
	APIPrefix        string   `yaml:"api_prefix"`
	APIRules         []struct {
		Prefix  string            `yaml:"prefix"`
		Module  string            `yaml:"module"`
		Methods map[string]string `yaml:"methods"`
	} `yaml:"api_rules"`
	UIRules []struct {
		Prefix string `yaml:"prefix"`
		Module string `yaml:"module"`
		Action string `yaml:"action"`
	} `yaml:"ui_rules"`
}

var knownMethods = map[string]struct{}{
	http.MethodGet:    {},
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodPatch:  {},
	http.MethodDelete: {},
}

// DefaultPolicy returns the embedded policy.
func DefaultPolicy() (*Policy, error) {
	return ParsePolicy(defaultPolicyYAML)
}

// LoadPolicy reads a policy file, falling back to the embedded default when
// filename is empty.
func LoadPolicy(filename string) (*Policy, error) {
	if filename == "" {
		return DefaultPolicy()
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("gate: read policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes and validates a YAML policy.
func ParsePolicy(data []byte) (*Policy, error) {
	var raw policyFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	p := &Policy{
		SignInPath:       raw.SignInPath,
		InactivePath:     raw.InactivePath,
		UnauthorizedPath: raw.UnauthorizedPath,
		RootPath:         raw.RootPath,
		HomePath:         raw.HomePath,
		APIPrefix:        raw.APIPrefix,
	}
	for name, v := range map[string]string{
		"signin_path":       p.SignInPath,
		"inactive_path":     p.InactivePath,
		"unauthorized_path": p.UnauthorizedPath,
		"root_path":         p.RootPath,
		"home_path":         p.HomePath,
		"api_prefix":        p.APIPrefix,
	} {
		if err := checkPath(v); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPolicy, name, err)
		}
	}
	for _, prefix := range raw.PublicPrefixes {
		if err := checkPath(prefix); err != nil {
			return nil, fmt.Errorf("%w: public prefix: %v", ErrInvalidPolicy, err)
		}
		p.PublicPrefixes = append(p.PublicPrefixes, cleanPath(prefix))
	}
	for _, r := range raw.APIRules {
		if err := checkPath(r.Prefix); err != nil {
			return nil, fmt.Errorf("%w: api rule: %v", ErrInvalidPolicy, err)
		}
		module, err := rbac.ParseModule(r.Module)
		if err != nil {
			return nil, fmt.Errorf("%w: api rule %s: %v", ErrInvalidPolicy, r.Prefix, err)
		}
		rule := APIRule{Prefix: cleanPath(r.Prefix), Module: module, Methods: make(map[string]rbac.Action, len(r.Methods))}
		for method, actionName := range r.Methods {
			method = strings.ToUpper(strings.TrimSpace(method))
			if _, ok := knownMethods[method]; !ok {
				return nil, fmt.Errorf("%w: api rule %s: unsupported method %q", ErrInvalidPolicy, r.Prefix, method)
			}
			action, err := rbac.ParseAction(actionName)
			if err != nil {
				return nil, fmt.Errorf("%w: api rule %s: %v", ErrInvalidPolicy, r.Prefix, err)
			}
			rule.Methods[method] = action
		}
		p.APIRules = append(p.APIRules, rule)
	}
	for _, r := range raw.UIRules {
		if err := checkPath(r.Prefix); err != nil {
			return nil, fmt.Errorf("%w: ui rule: %v", ErrInvalidPolicy, err)
		}
		perm, err := rbac.ParsePermission(r.Module, r.Action)
		if err != nil {
			return nil, fmt.Errorf("%w: ui rule %s: %v", ErrInvalidPolicy, r.Prefix, err)
		}
		p.UIRules = append(p.UIRules, UIRule{Prefix: cleanPath(r.Prefix), Permission: perm})
	}
	// Longest prefix first so the most specific rule wins.
	sort.SliceStable(p.APIRules, func(i, j int) bool { return len(p.APIRules[i].Prefix) > len(p.APIRules[j].Prefix) })
	sort.SliceStable(p.UIRules, func(i, j int) bool { return len(p.UIRules[i].Prefix) > len(p.UIRules[j].Prefix) })
	return p, nil
}

// IsPublic reports whether path is reachable without a session.
func (p *Policy) IsPublic(path string) bool {
	if path == p.RootPath {
		return true
	}
	for _, prefix := range p.PublicPrefixes {
		if matchPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// IsAPI reports whether path belongs to the API subtree. Every other
// non-public path is treated as UI.
func (p *Policy) IsAPI(path string) bool {
	return matchPrefix(path, p.APIPrefix)
}

// Required returns the permission the policy demands for method and path.
func (p *Policy) Required(method, path string) (rbac.Permission, bool) {
	if p.IsAPI(path) {
		if method == http.MethodHead {
			method = http.MethodGet
		}
		for _, rule := range p.APIRules {
			if !matchPrefix(path, rule.Prefix) {
				continue
			}
			action, ok := rule.Methods[method]
			if !ok {
				return rbac.Permission{}, false
			}
			return rbac.P(rule.Module, action), true
		}
		return rbac.Permission{}, false
	}
	for _, rule := range p.UIRules {
		if matchPrefix(path, rule.Prefix) {
			return rule.Permission, true
		}
	}
	return rbac.Permission{}, false
}

// matchPrefix is segment-aware: /api/usuarios matches /api/usuarios/7 but
// not /api/usuariosx.
func matchPrefix(p, prefix string) bool {
	if prefix == "/" {
		return true
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

func checkPath(p string) error {
	if p == "" {
		return errors.New("empty path")
	}
	if !strings.HasPrefix(p, "/") {
		return fmt.Errorf("path %q must be absolute", p)
	}
	return nil
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	cleaned := path.Clean("/" + strings.TrimLeft(p, "/"))
	return cleaned
}
