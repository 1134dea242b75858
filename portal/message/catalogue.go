// Package message resolves the localised messages shown to subjects denied use of a portal. Messages use
// the colour tags of the text package, such as <red>, and legacy & colour codes.
package message

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/df-mc/portalguard/portal/policy"
	"github.com/sandertv/gophertunnel/minecraft/text"
	"golang.org/x/text/language"
)

// BaseLanguage is the language messages fall back to when a key is missing in the requested language.
const BaseLanguage = "en"

// Catalogue holds messages keyed by language and message key. A Catalogue is immutable and safe for
// concurrent use.
type Catalogue struct {
	langs    []string
	messages map[string]map[string]string
	matcher  language.Matcher
}

// NewCatalogue creates a Catalogue from messages keyed by language code and then by message key. The base
// language must be present.
func NewCatalogue(messages map[string]map[string]string) (*Catalogue, error) {
	if _, ok := messages[BaseLanguage]; !ok {
		return nil, fmt.Errorf("message catalogue: base language %q is not defined", BaseLanguage)
	}
	langs := make([]string, 0, len(messages))
	for lang := range messages {
		if lang != BaseLanguage {
			langs = append(langs, lang)
		}
	}
	sort.Strings(langs)
	langs = append([]string{BaseLanguage}, langs...)

	c := &Catalogue{langs: langs, messages: make(map[string]map[string]string, len(messages))}
	tags := make([]language.Tag, len(langs))
	for i, lang := range langs {
		tag, err := language.Parse(lang)
		if err != nil {
			return nil, fmt.Errorf("message catalogue: parse language %q: %w", lang, err)
		}
		tags[i] = tag
		c.messages[lang] = make(map[string]string, len(messages[lang]))
		for key, msg := range messages[lang] {
			c.messages[lang][strings.TrimSpace(key)] = msg
		}
	}
	c.matcher = language.NewMatcher(tags)
	return c, nil
}

// MustCatalogue calls NewCatalogue and panics if it returns an error.
func MustCatalogue(messages map[string]map[string]string) *Catalogue {
	c, err := NewCatalogue(messages)
	if err != nil {
		panic(err)
	}
	return c
}

// Languages returns the languages of the Catalogue, with the base language first.
func (c *Catalogue) Languages() []string {
	return append([]string(nil), c.langs...)
}

// match returns the catalogue language closest to the one passed, or the base language if none is close.
func (c *Catalogue) match(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		return BaseLanguage
	}
	_, i, conf := c.matcher.Match(tag)
	if conf == language.No {
		return BaseLanguage
	}
	return c.langs[i]
}

// Lookup returns the raw message for the key in the language passed, falling back to the base language.
func (c *Catalogue) Lookup(lang, key string) (string, bool) {
	if msg, ok := c.messages[c.match(lang)][key]; ok {
		return msg, true
	}
	msg, ok := c.messages[BaseLanguage][key]
	return msg, ok
}

// Message returns the rendered message for the key in the language passed. Placeholders in the message,
// written as {name}, are replaced using the name/value pairs passed. A missing key renders as
// "Message not found: <key>".
func (c *Catalogue) Message(lang, key string, placeholders ...string) string {
	msg, ok := c.Lookup(lang, key)
	if !ok {
		return render("<red>Message not found: %v</red>", []any{key})
	}
	format := escape(msg)
	var args []any
	for i := 0; i+1 < len(placeholders); i += 2 {
		ph := "{" + placeholders[i] + "}"
		if !strings.Contains(format, ph) {
			continue
		}
		args = append(args, placeholders[i+1])
		format = strings.ReplaceAll(format, ph, "%["+strconv.Itoa(len(args))+"]v")
	}
	return render(format, args)
}

// Decision returns the rendered message for a decision, or an empty string if the decision carries no
// message key.
func (c *Catalogue) Decision(lang string, d policy.Decision) string {
	if d.Allowed || d.MessageKey == "" {
		return ""
	}
	return c.Message(lang, d.MessageKey, "time", fmt.Sprint(d.Remaining))
}

var legacyCodes = strings.NewReplacer(func() []string {
	var pairs []string
	for _, c := range "0123456789abcdefklmnorABCDEFKLMNOR" {
		pairs = append(pairs, "&"+string(c), "§"+strings.ToLower(string(c)))
	}
	return pairs
}()...)

// Render converts legacy & colour codes to § codes and expands colour tags.
func Render(msg string) string {
	return render(escape(msg), nil)
}

func render(format string, args []any) string {
	return text.Colourf(legacyCodes.Replace(format), args...)
}

func escape(msg string) string {
	return strings.ReplaceAll(msg, "%", "%%")
}

// Plain renders the message and strips all formatting from it.
func Plain(msg string) string {
	return text.Clean(Render(msg))
}
