package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultDocPath = "api/openapi.yaml"

type openAPIDoc struct {
	OpenAPI    string                          `yaml:"openapi"`
	Paths      map[string]map[string]operation `yaml:"paths"`
	Components struct {
		Schemas map[string]schema `yaml:"schemas"`
	} `yaml:"components"`
}

type operation struct {
	Security  []map[string][]string `yaml:"security"`
	Responses map[string]any        `yaml:"responses"`
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
	Enum       []string          `yaml:"enum"`
	Nullable   bool              `yaml:"nullable"`
}

// route is one operation the server registers.
type route struct {
	Method string
	Path   string
	Auth   bool
	Status []string
}

var requiredRoutes = []route{
	{Method: "get", Path: "/healthz", Status: []string{"200"}},
	{Method: "post", Path: "/api/auth/register", Status: []string{"201", "400", "422"}},
	{Method: "post", Path: "/api/auth/login", Status: []string{"200", "400", "401", "422"}},
	{Method: "post", Path: "/api/auth/logout", Auth: true, Status: []string{"204", "401"}},
	{Method: "get", Path: "/api/auth/me", Auth: true, Status: []string{"200", "401"}},
	{Method: "patch", Path: "/api/auth/me", Auth: true, Status: []string{"200", "400", "401", "422"}},
	{Method: "get", Path: "/api/users/{username}", Status: []string{"200", "404"}},
	{Method: "post", Path: "/api/messages", Status: []string{"201", "400", "404"}},
	{Method: "get", Path: "/api/messages", Auth: true, Status: []string{"200", "401"}},
	{Method: "get", Path: "/api/conversations", Auth: true, Status: []string{"200", "401"}},
	{Method: "get", Path: "/api/conversations/{key}", Auth: true, Status: []string{"200", "401", "404"}},
}

var errorCodes = []string{
	"invalid_input",
	"conflict",
	"not_found",
	"unauthorized",
	"invalid_json",
	"method_not_allowed",
	"internal",
}

func main() {
	path := defaultDocPath
	switch len(os.Args) {
	case 1:
	case 2:
		path = os.Args[1]
	default:
		fmt.Fprintf(os.Stderr, "usage: %s [openapi.yaml]\n", os.Args[0])
		os.Exit(2)
	}

	doc, err := loadDoc(path)
	if err != nil {
		exitErr(err)
	}
	if err := checkDoc(doc); err != nil {
		exitErr(err)
	}
	fmt.Println("OpenAPI contract check passed.")
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
		return doc, fmt.Errorf("parse openapi: %w", err)
	}
	return doc, nil
}

// checkDoc validates the error envelope, the shared schemas and that every
// server route is documented.
func checkDoc(doc openAPIDoc) error {
	if !strings.HasPrefix(doc.OpenAPI, "3.") {
		return fmt.Errorf("openapi version must be 3.x, got %q", doc.OpenAPI)
	}
	errResp, err := getSchema(doc, "ErrorResponse")
	if err != nil {
		return err
	}
	if err := validateErrorResponse(errResp); err != nil {
		return err
	}
	msg, err := getSchema(doc, "Message")
	if err != nil {
		return err
	}
	if err := validateMessage(msg); err != nil {
		return err
	}
	user, err := getSchema(doc, "User")
	if err != nil {
		return err
	}
	if _, ok := user.Properties["password"]; ok {
		return errors.New("User must not expose password")
	}
	if _, ok := user.Properties["passwordHash"]; ok {
		return errors.New("User must not expose passwordHash")
	}
	return validateRoutes(doc)
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
	required := makeSet(s.Required)
	for _, field := range []string{"success", "error", "code"} {
		if !required[field] {
			return fmt.Errorf("ErrorResponse.required must include %q", field)
		}
	}
	for field, typ := range map[string]string{
		"success":   "boolean",
		"error":     "string",
		"code":      "string",
		"requestId": "string",
	} {
		prop, ok := s.Properties[field]
		if !ok || prop.Type != typ {
			return fmt.Errorf("ErrorResponse.%s must be %s", field, typ)
		}
	}
	documented := makeSet(s.Properties["code"].Enum)
	for _, code := range errorCodes {
		if !documented[code] {
			return fmt.Errorf("ErrorResponse.code enum missing %q", code)
		}
	}
	return nil
}

func validateMessage(s schema) error {
	if s.Type != "object" {
		return errors.New("Message must be object")
	}
	required := makeSet(s.Required)
	for _, field := range []string{"id", "sender", "recipient", "text", "createdAt"} {
		if !required[field] {
			return fmt.Errorf("Message.required must include %q", field)
		}
	}
	sender, ok := s.Properties["sender"]
	if !ok {
		return errors.New("Message.sender missing")
	}
	if !sender.Nullable {
		return errors.New("Message.sender must be nullable for anonymous messages")
	}
	return nil
}

func validateRoutes(doc openAPIDoc) error {
	var problems []string
	for _, rt := range requiredRoutes {
		ops, ok := doc.Paths[rt.Path]
		if !ok {
			problems = append(problems, fmt.Sprintf("path %s missing", rt.Path))
			continue
		}
		op, ok := ops[rt.Method]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s %s missing", strings.ToUpper(rt.Method), rt.Path))
			continue
		}
		for _, status := range rt.Status {
			if _, ok := op.Responses[status]; !ok {
				problems = append(problems, fmt.Sprintf("%s %s missing %s response", strings.ToUpper(rt.Method), rt.Path, status))
			}
		}
		if rt.Auth && !hasBearer(op) {
			problems = append(problems, fmt.Sprintf("%s %s must require bearerAuth", strings.ToUpper(rt.Method), rt.Path))
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func hasBearer(op operation) bool {
	for _, req := range op.Security {
		if _, ok := req["bearerAuth"]; ok {
			return true
		}
	}
	return false
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

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
