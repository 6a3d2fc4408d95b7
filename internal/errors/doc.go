// Package errors provides the structured, actionable errors the jj command
// prints.
//
// Each error carries a code (e.g. "JJ101") that maps to a short message, a
// detailed explanation and a documentation URL. Codes are grouped by
// category:
//   - JJ1xx config: configuration file problems
//   - JJ2xx script: host scripts that fail to load or compile
//   - JJ3xx cli: command usage and startup failures
//
// # Usage
//
//	err := errors.New("JJ201").
//	    WithLocation("hosts/chat.js", 3, 12).
//	    WithSuggestion("Check for an unbalanced parenthesis")
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR JJ201: Script does not compile
//	//
//	//   hosts/chat.js:3:12
//	//
//	//     2 │ $("#send").on("click", function () {
//	//   → 3 │     var msg = $("#msg").val(;
//	//       │                ^
//	//
//	//   Hint: Check for an unbalanced parenthesis
package errors
