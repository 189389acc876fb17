package rbac

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	moduleByKey = buildKeys(Modules(), Module.String)
	actionByKey = buildKeys(Actions(), Action.String)
)

// ParseModule maps a catalog name to its Module. Matching ignores case and
// diacritics, so "psicologos" resolves to ModulePsychologists.
func ParseModule(name string) (Module, error) {
	if m, ok := moduleByKey[foldName(name)]; ok {
		return m, nil
	}
	return ModuleUnknown, fmt.Errorf("%w: %q", ErrUnknownModule, name)
}

// ParseAction maps a catalog name to its Action.
func ParseAction(name string) (Action, error) {
	if a, ok := actionByKey[foldName(name)]; ok {
		return a, nil
	}
	return ActionUnknown, fmt.Errorf("%w: %q", ErrUnknownAction, name)
}

// ModuleFromSlug resolves URL segments such as "usuarios" or "psicologos".
func ModuleFromSlug(slug string) (Module, bool) {
	m, ok := moduleByKey[foldName(slug)]
	return m, ok
}

// Slug returns the URL segment for the module.
func (m Module) Slug() string {
	return foldName(m.String())
}

func buildKeys[T comparable](values []T, name func(T) string) map[string]T {
	out := make(map[string]T, len(values))
	for _, v := range values {
		out[foldName(name(v))] = v
	}
	return out
}

// foldName produces the lookup key for catalog names: NFD decomposition,
// combining marks removed, case folded.
func foldName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), cases.Fold(), norm.NFC)
	out, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return out
}
