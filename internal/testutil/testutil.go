// Package testutil provides shared helpers for recordvault tests.
//
// The package is organized into focused files:
//   - assert.go: assertion helpers (AssertValidUTF8, AssertContainsAll)
//   - fs_helpers.go: filesystem operations (WriteFile, ReadFile, MustExist)
//   - archive_helpers.go: tar.gz fixture creation (CreateTarGz)
//   - security_data.go: security test vectors (PathTraversalCases)
//   - encoding.go: encoded byte samples for charset detection tests
//
// The record subpackage builds Meta Business Record fixtures (HTML
// documents and zip archives) for parser and importer tests.
package testutil
