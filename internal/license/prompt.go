package license

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// PromptRequest runs the interactive parameter collection over arbitrary
// reader/writer pairs so the selection policy is testable without a TTY.
// Any invalid input is fatal to the run, mirroring a one-shot operator
// tool: the caller exits non-zero on error.
func PromptRequest(in io.Reader, out io.Writer) (Request, error) {
	r := bufio.NewReader(in)
	var req Request

	fmt.Fprint(out, "Institution name: ")
	institution, err := readLine(r)
	if err != nil {
		return req, err
	}
	req.Institution = strings.TrimSpace(institution)
	if req.Institution == "" {
		return req, ErrEmptyInstitution
	}

	fmt.Fprintln(out, "License type:")
	fmt.Fprintln(out, "  1) Monthly   (31 days)")
	fmt.Fprintln(out, "  2) Annual    (365 days)")
	fmt.Fprintln(out, "  3) Permanent")
	fmt.Fprintln(out, "  4) Custom date")
	fmt.Fprint(out, "Select [1-4]: ")
	choice, err := readLine(r)
	if err != nil {
		return req, err
	}

	switch strings.TrimSpace(choice) {
	case "1":
		req.Type = TypeMonthly
	case "2":
		req.Type = TypeAnnual
	case "3":
		req.Type = TypePermanent
	case "4":
		req.Type = TypeCustom
		fmt.Fprint(out, "Expiry date (YYYY-MM-DD): ")
		date, err := readLine(r)
		if err != nil {
			return req, err
		}
		req.CustomDate = strings.TrimSpace(date)
		if !customDatePattern.MatchString(req.CustomDate) {
			return req, ErrInvalidCustomDate
		}
	default:
		return req, fmt.Errorf("%w: %q", ErrInvalidLicenseType, strings.TrimSpace(choice))
	}

	fmt.Fprint(out, "Allowed domain (empty for any): ")
	domain, err := readLine(r)
	if err != nil {
		return req, err
	}
	req.Domain = strings.TrimSpace(domain)

	return req, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err == io.EOF && line != "" {
		// Last line without a trailing newline still counts.
		return line, nil
	}
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
