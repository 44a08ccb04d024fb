// Package errors provides structured, actionable error messages for the
// chartsync command.
//
// Each error has a unique code that maps to a category, a short message
// and a default suggestion:
//   - E1xx config: chartsync.json could not be read, parsed or validated
//   - E2xx storage: the preference backend could not be opened, read or written
//   - E3xx cli: bad arguments and server failures
//
// # Usage
//
//	err := errors.New("E103").
//	    WithLocation("chartsync.json", 0, 0).
//	    WithDetail("port 70000 is out of range")
//
//	errors.Fprint(os.Stderr, err)
//	// Output:
//	// ERROR E103: Invalid server port
//	//
//	//   chartsync.json
//	//
//	//   port 70000 is out of range
//	//
//	//   Hint: Use a port between 1 and 65535.
package errors
