package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"murojaat/pkg/domain"
	"murojaat/services/desk/internal/server"
)

type openAPIDoc struct {
	Paths      map[string]map[string]any `yaml:"paths"`
	Components struct {
		Schemas map[string]schema `yaml:"schemas"`
	} `yaml:"components"`
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
}

// servedRoutes groups server.Routes by path with lower-case methods, as
// they appear under paths in the document.
func servedRoutes() map[string][]string {
	out := make(map[string][]string, len(server.Routes))
	for _, r := range server.Routes {
		out[r.Path] = append(out[r.Path], strings.ToLower(r.Method))
	}
	return out
}

func loadDoc(path string) (openAPIDoc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return openAPIDoc{}, fmt.Errorf("read %s: %w", path, err)
	}
	return parseDoc(raw)
}

func parseDoc(raw []byte) (openAPIDoc, error) {
	var doc openAPIDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse: %w", err)
	}
	return doc, nil
}

func check(doc openAPIDoc) error {
	if err := checkRoutes(doc); err != nil {
		return err
	}
	errSchema, err := getSchema(doc, "ErrorResponse")
	if err != nil {
		return err
	}
	if err := validateErrorResponse(errSchema); err != nil {
		return err
	}
	samples, err := wireSamples()
	if err != nil {
		return err
	}
	names := make([]string, 0, len(samples))
	for name := range samples {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s, err := getSchema(doc, name)
		if err != nil {
			return err
		}
		if err := ensureSameFields(name, s, samples[name]); err != nil {
			return err
		}
	}
	return nil
}

func checkRoutes(doc openAPIDoc) error {
	routes := servedRoutes()
	for path, methods := range routes {
		item, ok := doc.Paths[path]
		if !ok {
			return fmt.Errorf("path %q missing", path)
		}
		for _, method := range methods {
			if _, ok := item[method]; !ok {
				return fmt.Errorf("path %q missing %s operation", path, strings.ToUpper(method))
			}
		}
	}
	for path := range doc.Paths {
		if _, ok := routes[path]; !ok {
			return fmt.Errorf("path %q is not served", path)
		}
	}
	return nil
}

func getSchema(doc openAPIDoc, name string) (schema, error) {
	if doc.Components.Schemas == nil {
		return schema{}, errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

func validateErrorResponse(s schema) error {
	if s.Type != "object" {
		return errors.New("ErrorResponse must be object")
	}
	if !makeSet(s.Required)["error"] {
		return errors.New("ErrorResponse.required must include \"error\"")
	}
	errorProp, ok := s.Properties["error"]
	if !ok || errorProp.Type != "string" {
		return errors.New("ErrorResponse.error must be string")
	}
	return nil
}

// wireSamples marshals one fully populated value of each body type and
// returns its JSON keys, keyed by schema name.
func wireSamples() (map[string][]string, error) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	student := domain.User{
		ID:      "s1",
		Name:    "n",
		Surname: "s",
		Profile: domain.StudentProfile{Faculty: "f", Direction: "d", Group: "g"},
	}
	msg := domain.Message{ID: "m1", SenderID: "s1", SenderName: "n s", Text: "t", Timestamp: at, IsSystem: true}
	ticket := domain.Ticket{
		ID:          "t1",
		StudentID:   "s1",
		StudentName: "n s",
		Faculty:     "f",
		Title:       "t",
		Status:      domain.StatusOpen,
		CreatedAt:   at,
		UpdatedAt:   at,
		Messages:    []domain.Message{msg},
	}
	values := map[string]any{
		"User":          student,
		"Registration":  domain.Registration{},
		"Message":       msg,
		"Ticket":        ticket,
		"TicketSummary": domain.TicketSummary{},
	}
	out := make(map[string][]string, len(values))
	for name, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", name, err)
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out[name] = keys
	}
	return out, nil
}

func ensureSameFields(name string, s schema, fields []string) error {
	if s.Type != "object" {
		return fmt.Errorf("%s must be object", name)
	}
	documented := make([]string, 0, len(s.Properties))
	for key := range s.Properties {
		documented = append(documented, key)
	}
	sort.Strings(documented)
	if strings.Join(documented, ",") != strings.Join(fields, ",") {
		return fmt.Errorf("%s property mismatch: documented %v, served %v", name, documented, fields)
	}
	for _, req := range s.Required {
		if _, ok := s.Properties[req]; !ok {
			return fmt.Errorf("%s requires undocumented property %q", name, req)
		}
	}
	return nil
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out[item] = true
	}
	return out
}
