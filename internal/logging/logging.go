// Package logging wraps the standard library logger in the teacher's
// idiom (plain log.Printf call sites, no injected logging interface)
// so the rest of the module reads logging.Infof/Errorf instead of
// reaching for log.Printf directly, without adopting a structured
// logging library the pack's teacher repo never reaches for itself.
package logging

import "log"

func Infof(format string, args ...any) {
	log.Printf("INFO "+format, args...)
}

func Warnf(format string, args ...any) {
	log.Printf("WARN "+format, args...)
}

func Errorf(format string, args ...any) {
	log.Printf("ERROR "+format, args...)
}
