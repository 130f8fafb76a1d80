// Package steprun runs external programs and configured command steps,
// streaming their output line by line.
package steprun

// Version is the steprun release version.
const Version = "0.1.0"
