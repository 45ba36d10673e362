// Package filetypes classifies filesystem entries by extension-table lookup.
// Classification never inspects file contents; content sniffing belongs to
// downstream consumers that actually open files.
package filetypes
