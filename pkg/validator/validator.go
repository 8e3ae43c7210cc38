// Package validator validates script files before execution.
// It parses every file upfront, resolves runScript references, and detects errors.
package validator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/devicelab-dev/browser-runner/pkg/script"
)

// ValidationError represents a validation error with context.
type ValidationError struct {
	File    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Result contains the validation result.
type Result struct {
	// Scripts are the top-level scripts to run, in execution order.
	Scripts []*script.Script
	// Files lists every validated file, runScript targets included.
	Files []string
	// Errors contains all validation errors found.
	Errors []error
}

// IsValid returns true if there are no validation errors.
func (r *Result) IsValid() bool {
	return len(r.Errors) == 0
}

// Validator validates script files.
type Validator struct {
	includeTags []string
	excludeTags []string
}

// New creates a new Validator.
func New(includeTags, excludeTags []string) *Validator {
	return &Validator{
		includeTags: includeTags,
		excludeTags: excludeTags,
	}
}

// Validate validates files or directories, in the given order.
func (v *Validator) Validate(paths ...string) *Result {
	result := &Result{}
	validated := make(map[string]bool)

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			result.Errors = append(result.Errors, &ValidationError{
				File:    path,
				Message: fmt.Sprintf("cannot access: %v", err),
			})
			continue
		}

		files := []string{path}
		if info.IsDir() {
			files, err = collectScriptFiles(path)
			if err != nil {
				result.Errors = append(result.Errors, &ValidationError{
					File:    path,
					Message: fmt.Sprintf("failed to scan directory: %v", err),
				})
				continue
			}
		}

		for _, file := range files {
			s := v.validateFile(file, result, validated, nil)
			if s != nil && script.ShouldInclude(s, v.includeTags, v.excludeTags) {
				result.Scripts = append(result.Scripts, s)
			}
		}
	}

	return result
}

// collectScriptFiles finds all .yaml/.yml files in a directory.
func collectScriptFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

// validateFile validates a single file and its runScript dependencies.
// It returns the parsed script, or nil when the file could not be parsed.
func (v *Validator) validateFile(filePath string, result *Result, validated map[string]bool, chain []string) *script.Script {
	for _, ancestor := range chain {
		if ancestor == filePath {
			cycle := append(append([]string{}, chain...), filePath)
			result.Errors = append(result.Errors, &ValidationError{
				File:    filePath,
				Message: fmt.Sprintf("circular dependency detected: %s", strings.Join(cycle, " -> ")),
			})
			return nil
		}
	}

	s, err := script.ParseFile(filePath)
	if err != nil {
		result.Errors = append(result.Errors, &ValidationError{
			File:    filePath,
			Message: fmt.Sprintf("parse error: %v", err),
		})
		return nil
	}

	// Still walk the references of an already validated file so cycles
	// through it are reported, but record its own errors once.
	if !validated[filePath] {
		validated[filePath] = true
		result.Files = append(result.Files, filePath)
		result.Errors = append(result.Errors, script.Validate(s)...)
	}

	newChain := append(append([]string{}, chain...), filePath)
	parentDir := filepath.Dir(filePath)
	for _, step := range s.Steps {
		if step.Command == script.CmdRunScript && step.Params.File != "" {
			v.validateFile(ResolvePath(parentDir, step.Params.File), result, validated, newChain)
		}
	}
	return s
}

// ResolvePath resolves a runScript path relative to the including script's directory.
func ResolvePath(baseDir, filePath string) string {
	if filepath.IsAbs(filePath) {
		return filePath
	}
	return filepath.Join(baseDir, filePath)
}
