package testutil

import (
	"archive/zip"
	"bytes"
	"testing"
)

// ZipEntry is one file inside a fixture archive.
type ZipEntry struct {
	Name string
	Body string
}

// ZipBytes builds an in-memory ZIP archive with entries in the given order.
func ZipBytes(t testing.TB, entries ...ZipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			t.Fatalf("create zip entry %s: %v", e.Name, err)
		}
		if _, err := w.Write([]byte(e.Body)); err != nil {
			t.Fatalf("write zip entry %s: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

// EntitiesFile is a small caret-delimited entities file in the published layout.
const EntitiesFile = "County Code^District Code^School Code^Filler^Test Year^Type ID^County Name^District Name^School Name^Zip Code\n" +
	"00^00000^0000000^^2024^04^State of California^^^\n" +
	"01^00000^0000000^^2024^05^Alameda^^^\n" +
	"01^61119^0000000^^2024^06^Alameda^Alameda Unified^^\n" +
	"01^61119^0131177^^2024^07^Alameda^Alameda Unified^Alameda High^94501\n" +
	"19^64733^1933746^^2024^07^Los Angeles^Los Angeles Unified^Lincoln Elementary^90031\n"

// ResultsFile is a small caret-delimited results file in the published layout.
const ResultsFile = "County Code^District Code^School Code^Filler^Test Year^Student Group ID^Test Type^Total Tested at Reporting Level^Total Tested with Scores at Reporting Level^Grade^Test ID^Students Enrolled^Students Tested^Mean Scale Score^Percentage Standard Exceeded^Percentage Standard Met^Percentage Standard Met and Above^Percentage Standard Nearly Met^Percentage Standard Not Met^Students with Scores^Count Standard Exceeded^Count Standard Met^Count Standard Met and Above^Count Standard Nearly Met^Count Standard Not Met^Type ID\n" +
	"00^00000^0000000^^2024^1^B^900000^890000^13^1^910000^900000^2500.5^20.10^26.30^46.40^22.00^31.60^890000^178890^234070^412960^195800^281240^04\n" +
	"01^61119^131177^^2024^1^B^400^398^11^2^410^400^2601.2^30.00^25.00^55.00^20.00^25.00^398^119^100^219^80^99^07\n" +
	"1^61119^131177^^2024^128^B^12^12^11^2^12^12^*^*^*^*^*^*^12^*^*^*^*^*^07\n"

// StudentGroupsFile is the comma-delimited subgroup reference layout.
const StudentGroupsFile = "Demographic ID Num,Demographic ID,Demographic Name,Student Group\n" +
	"1,001,All Students,All Students\n" +
	"160,160,English learner,English-Language Fluency\n" +
	"1,001,All Students,All Students\n"

// TestsFile is the caret-delimited test reference layout.
const TestsFile = "Test ID Num^Test ID^Test Name\n" +
	"1^1^Smarter Balanced English Language Arts/Literacy\n" +
	"2^2^Smarter Balanced Mathematics\n"
