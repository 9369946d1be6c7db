package usage

import (
	"fmt"
	"strconv"
)

// ServiceCodes is the bijection between service names and their compact
// codes. Codes are dataset-relative: assignment follows the order services
// first appear in the table, so a filtered or reordered input yields a
// different mapping.
type ServiceCodes struct {
	services []string
	codes    map[string]string
	names    map[string]string
}

// AssignServiceCodes enumerates the distinct service values in order of
// first appearance, assigns sequential codes "S01", "S02", ... zero-padded
// to the width the count needs (at least two digits), and stamps
// Record.Serv on every row. Idempotent for identical input ordering.
func AssignServiceCodes(t *Table) *ServiceCodes {
	sc := &ServiceCodes{
		codes: make(map[string]string),
		names: make(map[string]string),
	}
	for _, rec := range t.Records {
		if rec.Service == "" {
			continue
		}
		if _, ok := sc.codes[rec.Service]; ok {
			continue
		}
		sc.codes[rec.Service] = ""
		sc.services = append(sc.services, rec.Service)
	}

	width := len(strconv.Itoa(len(sc.services)))
	if width < 2 {
		width = 2
	}
	for i, name := range sc.services {
		code := fmt.Sprintf("S%0*d", width, i+1)
		sc.codes[name] = code
		sc.names[code] = name
	}

	for i := range t.Records {
		t.Records[i].Serv = sc.codes[t.Records[i].Service]
	}
	return sc
}

// Service returns the service name behind a code.
func (sc *ServiceCodes) Service(code string) (string, error) {
	name, ok := sc.names[code]
	if !ok {
		return "", &NotFoundError{Code: code}
	}
	return name, nil
}

// Code returns the code assigned to a service name.
func (sc *ServiceCodes) Code(service string) (string, error) {
	code, ok := sc.codes[service]
	if !ok || code == "" {
		return "", &NotFoundError{Service: service}
	}
	return code, nil
}

// Codes lists the assigned codes in assignment order.
func (sc *ServiceCodes) Codes() []string {
	codes := make([]string, len(sc.services))
	for i, name := range sc.services {
		codes[i] = sc.codes[name]
	}
	return codes
}

// Services lists the service names in first-appearance order.
func (sc *ServiceCodes) Services() []string {
	return append([]string(nil), sc.services...)
}

// Len returns the number of mapped services.
func (sc *ServiceCodes) Len() int {
	return len(sc.services)
}

// AgeBinLabel returns the width-10 bucket label for an age: "0-9" through
// "90-99", then "100+" with no upper cap. Negative ages fall in no bucket
// and get an empty label.
func AgeBinLabel(age int) string {
	switch {
	case age < 0:
		return ""
	case age >= 100:
		return "100+"
	}
	lower := (age / 10) * 10
	return fmt.Sprintf("%d-%d", lower, lower+9)
}

// AgeBinLabels lists every bucket label in ascending age order.
func AgeBinLabels() []string {
	labels := make([]string, 0, 11)
	for lower := 0; lower < 100; lower += 10 {
		labels = append(labels, fmt.Sprintf("%d-%d", lower, lower+9))
	}
	return append(labels, "100+")
}

// ApplyAgeBins stamps Record.AgeBin on every row.
func ApplyAgeBins(t *Table) {
	for i := range t.Records {
		t.Records[i].AgeBin = AgeBinLabel(t.Records[i].Age)
	}
}
