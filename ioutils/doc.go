/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

/*
Package ioutils provides file-path preparation and progress-tracked file
handles used by the logger package, plus a closer registry subpackage.

# Architecture

	Root Package (ioutils)
	├── PathCheckCreate  - File/directory creation with permission management
	├── NewFileProgressTemp - progress-tracked temp file handle used by logger's own tests
	│
	└── mapCloser        - Thread-safe, context-aware manager for multiple io.Closer instances,
	                        used by logger to track hook-owned closers

This module only keeps the two pieces of ioutils actually reachable from
vessel: PathCheckCreate/NewFileProgressTemp (exercised directly by logger's
test suite) and mapCloser (imported by logger/manage.go). The teacher's
other ioutils subpackages (iowrapper, bufferReadCloser, fileDescriptor,
aggregator, delim, ioprogress, maxstdio, multi, nopwritecloser) were never
imported by logger, certificates, or any vessel package and have been
removed - see DESIGN.md's carried-infrastructure disclosure.

# Key Features

Path Management:
  - Atomic file/directory creation
  - Automatic parent directory creation
  - Permission validation and correction
  - Type checking (file vs directory)

Resource Management:
  - Closer collection management via mapCloser

# Limitations

1. Platform Dependencies:
  - Permission handling varies between Unix and Windows

2. Concurrency:
  - PathCheckCreate is not atomic for the same path across goroutines
  - mapCloser provides its own concurrency guarantees

3. Error Handling:
  - Does not use panic; all errors must be explicitly handled
  - Some operations may partially succeed before returning an error

# Common Use Cases

Application Initialization:

	// Ensure application directories exist
	if err := ioutils.PathCheckCreate(false, "/var/app/data", 0644, 0755); err != nil {
	    return fmt.Errorf("data dir: %w", err)
	}

	// Create log file with proper permissions
	if err := ioutils.PathCheckCreate(true, "/var/log/app.log", 0644, 0755); err != nil {
	    return fmt.Errorf("log file: %w", err)
	}

Configuration Management:

	// Create config directory structure
	configPaths := []string{
	    "/etc/app/config",
	    "/etc/app/config/plugins",
	    "/etc/app/config/templates",
	}

	for _, path := range configPaths {
	    if err := ioutils.PathCheckCreate(false, path, 0644, 0750); err != nil {
	        return err
	    }
	}

Log File Rotation:

	// Ensure log directory exists before rotation
	logDir := filepath.Dir(logPath)
	if err := ioutils.PathCheckCreate(false, logDir, 0644, 0755); err != nil {
	    return err
	}

	// Create new log file
	if err := ioutils.PathCheckCreate(true, logPath, 0644, 0755); err != nil {
	    return err
	}

See the mapCloser subpackage documentation for closer management.

# Thread Safety

The root PathCheckCreate function is safe to call from multiple goroutines
for different paths. However, concurrent calls for the same path may result
in race conditions. Use external synchronization if needed.

Each subpackage documents its own concurrency guarantees.

# Error Handling

All functions return errors that can be inspected using standard error
handling patterns:

	if err := ioutils.PathCheckCreate(true, path, 0644, 0755); err != nil {
	    if errors.Is(err, os.ErrPermission) {
	        // Handle permission error
	    } else if errors.Is(err, os.ErrNotExist) {
	        // Handle path error
	    } else {
	        // Handle other errors
	    }
	}

Errors from the os package are returned as they are (a *os.PathError names
the operation and the path); a path of the wrong type gives a plain error
that names the path.

# Best Practices

1. Always check errors - this package never uses panic
2. Use appropriate permissions - follow least privilege principle
3. Clean up resources - use defer for closers
4. Consider platform differences - test on target OS
5. Validate paths - ensure paths are absolute when needed

# Migration Notes

When migrating from os package functions:

	// Before
	if err := os.MkdirAll(path, 0755); err != nil {
	    return err
	}

	// After - also handles permission updates
	if err := ioutils.PathCheckCreate(false, path, 0644, 0755); err != nil {
	    return err
	}

The PathCheckCreate function combines mkdir, permission checking, and type
validation in a single call.

# Related Packages

  - os: Standard library file operations
  - io: Standard library I/O interfaces
  - filepath: Path manipulation utilities
  - bufio: Buffered I/O operations

# Subpackage Overview

  - mapCloser: Thread-safe, context-aware manager for multiple io.Closer instances
*/
package ioutils
