package builder

// statusCodes maps latexmk exit codes to their documented meanings. Codes not
// listed fall through to a generic description.
var statusCodes = map[int]string{
	0:  "Success",
	10: "Bad command-line arguments",
	11: "File specified on command line not found",
	12: "Failure in some part of making files",
	13: "Error in initialization file",
	20: "Probable bug, or error propagated from a called program",
}

// StatusCodeMessage returns the description for a latexmk exit code.
func StatusCodeMessage(code int) string {
	if msg, ok := statusCodes[code]; ok {
		return msg
	}
	return "Unknown failure"
}
