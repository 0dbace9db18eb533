package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jwebster45206/scene-engine/pkg/action"
	"github.com/jwebster45206/scene-engine/pkg/scenario"
)

func main() {
	catalogDir := flag.String("catalog-dir", "", "directory of custom catalogs used to resolve scenarios")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-catalog-dir dir] <file.json>...\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Files with an \"actions\" list are checked as catalogs, anything else as a scenario.")
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	v := &Validator{catalogs: scenario.CatalogSource{Dir: *catalogDir}}
	failed := false
	for _, filename := range flag.Args() {
		fmt.Printf("Validating %s...\n", filename)
		if err := v.validateFile(filename); err != nil {
			fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
	fmt.Println("All files are valid!")
}

// Validator checks catalog and scenario files strictly: unknown fields are
// errors and names must be snake_case.
type Validator struct {
	catalogs scenario.CatalogSource
	errors   []string
}

func (v *Validator) validateFile(filename string) error {
	baseName := filepath.Base(filename)
	if !strings.HasSuffix(baseName, ".json") {
		return fmt.Errorf("file must have .json extension: %s", baseName)
	}
	if !isValidFilename(strings.TrimSuffix(baseName, ".json")) {
		return fmt.Errorf("filename '%s' must be lowercase snake_case (e.g., night_market.json)", baseName)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", filename, err)
	}
	if !json.Valid(data) {
		return fmt.Errorf("file %s contains invalid JSON", filename)
	}

	v.errors = nil
	if isCatalog(data) {
		v.validateCatalog(data)
	} else {
		v.validateScenario(data, baseName)
	}

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors in %s:\n%s", filename, strings.Join(v.errors, "\n"))
	}
	return nil
}

func isCatalog(data []byte) bool {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return false
	}
	_, ok := top["actions"]
	return ok
}

func (v *Validator) validateCatalog(data []byte) {
	var raw action.Catalog
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		v.addError(fmt.Sprintf("failed strict JSON unmarshaling: %v", err))
		return
	}

	c, err := action.LoadCatalog(bytes.NewReader(data))
	if err != nil {
		v.addError(err.Error())
		return
	}
	v.validateIDFormat("catalog name", c.Name)
	for _, f := range c.DeltaFields {
		v.validateIDFormat("delta field", f)
	}
	for _, k := range c.Kinds() {
		if !validKindRegex.MatchString(string(k)) {
			v.addError(fmt.Sprintf("action kind '%s' should be UPPER_SNAKE_CASE", k))
		}
	}
}

func (v *Validator) validateScenario(data []byte, baseName string) {
	s, err := scenario.Decode(bytes.NewReader(data), true)
	if err != nil {
		v.addError(fmt.Sprintf("failed strict JSON unmarshaling: %v", err))
		return
	}
	s.FileName = baseName

	v.validateIDFormat("scenario name", s.Name)
	v.validateIDFormat("narrator_id", s.NarratorID)
	if err := s.Validate(); err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			v.addError(line)
		}
	}
	for flag := range s.World.Flags {
		if !strings.HasSuffix(flag, "_departed") {
			v.validateIDFormat("world flag", flag)
		}
	}
	for field := range s.World.Levels {
		v.validateIDFormat("world level", field)
	}

	cat, err := v.catalogs.Resolve(s)
	if err != nil {
		v.addError(err.Error())
		return
	}
	scene, err := s.ToState(cat, scenario.Options{})
	if err != nil {
		v.addError(fmt.Sprintf("failed to build scene: %v", err))
		return
	}
	if len(cat.Allowed(scene)) == 0 {
		v.addError("no action is allowed at the start of the scene")
	}
}

func (v *Validator) validateIDFormat(fieldName, id string) {
	if id == "" {
		return
	}
	if !validIDRegex.MatchString(id) {
		v.addError(fmt.Sprintf("%s '%s' should be lowercase snake_case", fieldName, id))
	}
}

func (v *Validator) addError(msg string) {
	v.errors = append(v.errors, "  - "+msg)
}

var (
	validIDRegex   = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$|^[a-z]$`)
	validKindRegex = regexp.MustCompile(`^[A-Z][A-Z0-9_]*[A-Z0-9]$`)
)

func isValidFilename(name string) bool {
	// Allow 'x.' prefix for experimental files
	name = strings.TrimPrefix(name, "x.")
	return validIDRegex.MatchString(name)
}
