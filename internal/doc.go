// Package internal contains the implementation packages for shadowstream.
//
// # Package Organization
//
//   - tpl: template values, results, promises and the Template constructor
//   - compiler: turns template statics into cached opcode programs
//   - render: interprets programs into a stream of HTML fragments
//   - element: custom element renderers and their registry
//   - source: loads template files, includes and YAML data
//   - build: static export of a template directory
//   - server: HTTP streaming, live reload over WebSocket
//   - watcher: debounced file system monitoring
//   - config, logging, errors, validation, version: shared support
//
// # Data Flow
//
// A template file is loaded by source into a tpl.Result. The compiler
// parses its statics once per digest into a Program, and the render
// package walks the program with the result's values, yielding fragments
// that carry hydration markers for the client runtime. Custom elements
// found along the way are handed to their registered renderer, which
// streams the element's attributes and shadow root inline.
package internal
