package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/nodesync/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool                       `json:"valid"`
	Kinds     int                        `json:"kinds"`
	Templates int                        `json:"templates"`
	Errors    []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <defs-dir>",
		Short: "Validate kind and template definitions",
		Long: `Compile the CUE kind and template definitions in a directory and
check them: attribute types, defaults, template kinds and attributes,
and the reserved handle attribute.

All errors are reported, not only the first.

Exit codes:
  0 - Definitions are valid
  1 - Validation failed
  2 - Command error (directory not found, no CUE files, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loaded, loadErrors := compiler.LoadDir(dir, compiler.LoadModeCollectAll)
	if loaded == nil && len(loadErrors) > 0 {
		var loadErr *compiler.LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputValidateError(formatter, compiler.ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loaded.FileCount, dir)

	var validationErrors []compiler.ValidationError
	for _, err := range loadErrors {
		var loadErr *compiler.LoadError
		if errors.As(err, &loadErr) {
			validationErrors = append(validationErrors, compiler.ValidationError{
				Field:   "load",
				Message: loadErr.Message,
				Code:    loadErr.Code,
				Line:    lineOf(loadErr),
			})
			continue
		}
		validationErrors = append(validationErrors, compiler.ValidationError{
			Field:   "load",
			Message: err.Error(),
			Code:    compiler.ErrCodeGeneric,
		})
	}

	for _, k := range loaded.Bundle.Kinds {
		formatter.VerboseLog("Validating kind: %s", k.Name)
	}
	for _, t := range loaded.Bundle.Templates {
		formatter.VerboseLog("Validating template: %s", t.Name)
	}
	validationErrors = append(validationErrors,
		compiler.Validate(&loaded.Bundle, opts.Config.HandleAttribute)...)

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}

	return outputValidateSuccess(formatter, ValidationResult{
		Valid:     true,
		Kinds:     len(loaded.Bundle.Kinds),
		Templates: len(loaded.Bundle.Templates),
	})
}

// lineOf extracts the line number from a load error position.
func lineOf(e *compiler.LoadError) int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(f *OutputFormatter, result ValidationResult) error {
	f.Passed("Definitions valid (%d kinds, %d templates)", result.Kinds, result.Templates)
	return f.Success(result)
}

// outputValidateError reports input that could not be loaded at all.
// Load errors are command errors (exit code 2).
func outputValidateError(f *OutputFormatter, code, message string, details any) error {
	if err := f.Error(code, message, details); err != nil {
		return err
	}
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors reports every validation error, grouped by line.
func outputValidationErrors(f *OutputFormatter, errs []compiler.ValidationError) error {
	failed := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	if f.JSON() {
		if err := f.Fail(errs[0].Code, errs[0].Message, ValidationResult{Valid: false, Errors: errs}); err != nil {
			return err
		}
		return failed
	}

	f.Failed("Validation failed")
	f.Blank()
	for _, err := range errs {
		if err.Line > 0 {
			f.Line("line %d", err.Line)
		}
		f.Line("  %s: %s: %s", err.Code, err.Field, err.Message)
		f.Blank()
	}
	return failed
}
