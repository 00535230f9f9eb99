// Package roster maps uploaded student lists with free-form headers onto roster entries.
package roster

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"classattend/internal/attendance"
)

// Record is one data row keyed by header. Empty cells are absent.
type Record map[string]string

// Aliases lists the accepted headers per field, in priority order.
// Headers are matched case-sensitively.
var Aliases = struct {
	StudentID, Prefix, FirstName, LastName, FullName, Nickname []string
	Email, Phone, Status, Department, Year, Section            []string
}{
	StudentID: []string{
		"รหัสนักศึกษา", "รหัสนักเรียน", "studentId", "StudentID", "student_id",
		"ID", "id", "รหัส", "เลขประจำตัว", "เลขที่", "ลำดับที่", "No.", "no",
		"เลขประจำตัวนักศึกษา", "Student ID",
	},
	Prefix: []string{
		"คำนำหน้า", "คำนำหน้าชื่อ", "prefix", "Prefix", "title", "Title",
		"Mr", "Ms", "Mrs", "นาย", "นาง", "นางสาว",
	},
	FirstName: []string{
		"ชื่อ", "ชื่อจริง", "firstName", "FirstName", "first_name", "Name", "name",
		"given_name", "givenName", "ชื่อต้น",
	},
	LastName: []string{
		"นามสกุล", "ชื่อสกุล", "lastName", "LastName", "last_name", "Surname", "surname",
		"family_name", "familyName", "สกุล",
	},
	FullName: []string{
		"ชื่อเต็ม", "ชื่อ-นามสกุล", "fullName", "FullName", "full_name", "completeName",
		"ชื่อ-สกุล", "ชื่อและนามสกุล",
	},
	Nickname:   []string{"ชื่อเล่น", "nickname", "Nickname", "nick_name", "petName"},
	Email:      []string{"อีเมล", "อีเมล์", "email", "Email", "e-mail", "E-mail", "emailAddress"},
	Phone:      []string{"เบอร์โทร", "เบอร์โทรศัพท์", "phone", "Phone", "phoneNumber", "tel", "telephone", "mobile", "มือถือ", "โทรศัพท์"},
	Status:     []string{"สถานะ", "สถานภาพ", "status", "Status", "state", "State", "condition"},
	Department: []string{"แผนก", "ภาควิชา", "คณะ", "department", "Department", "faculty", "Faculty", "division", "Division", "สาขา", "วิชาเอก"},
	Year:       []string{"ปี", "ชั้นปี", "year", "Year", "level", "Level", "grade", "Grade"},
	Section: []string{
		"หมู่", "กลุ่ม", "ห้อง", "section", "Section", "group", "Group", "class", "Class",
		"ชั้น/ห้อง", "ชั้นห้อง",
	},
}

var known = func() map[string]bool {
	m := make(map[string]bool)
	for _, list := range [][]string{
		Aliases.StudentID, Aliases.Prefix, Aliases.FirstName, Aliases.LastName, Aliases.FullName, Aliases.Nickname,
		Aliases.Email, Aliases.Phone, Aliases.Status, Aliases.Department, Aliases.Year, Aliases.Section,
	} {
		for _, k := range list {
			m[k] = true
		}
	}
	return m
}()

// Result is the outcome of normalizing a batch.
type Result struct {
	Imported []attendance.RosterEntry `json:"imported"`
	Errors   []string                 `json:"errors,omitempty"`
}

// lookup returns the trimmed value of the first alias present in rec.
func lookup(rec Record, aliases []string) (string, bool) {
	for _, k := range aliases {
		if v, ok := rec[k]; ok {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// NormalizeRow maps one record. A row without a student id or a resolvable
// name is rejected with the raw row echoed in the error.
func NormalizeRow(rec Record) (attendance.RosterEntry, error) {
	var e attendance.RosterEntry
	e.StudentID, _ = lookup(rec, Aliases.StudentID)

	if full, ok := lookup(rec, Aliases.FullName); ok {
		e.Name = full
	} else {
		prefix, _ := lookup(rec, Aliases.Prefix)
		first, _ := lookup(rec, Aliases.FirstName)
		last, _ := lookup(rec, Aliases.LastName)
		if first != "" && last != "" {
			e.Name = strings.TrimSpace(prefix + " " + first + " " + last)
			e.Prefix, e.FirstName, e.LastName = prefix, first, last
		}
	}
	if e.StudentID == "" || e.Name == "" {
		return attendance.RosterEntry{}, fmt.Errorf("incomplete row (student id and full name are required): %s", echo(rec))
	}

	e.Nickname, _ = lookup(rec, Aliases.Nickname)
	e.Email, _ = lookup(rec, Aliases.Email)
	e.Phone, _ = lookup(rec, Aliases.Phone)
	e.Department, _ = lookup(rec, Aliases.Department)
	e.Year, _ = lookup(rec, Aliases.Year)
	e.Section, _ = lookup(rec, Aliases.Section)
	if e.Status, _ = lookup(rec, Aliases.Status); e.Status == "" {
		e.Status = "active"
	}

	for k, v := range rec {
		if known[k] || v == "" {
			continue
		}
		if e.AdditionalData == nil {
			e.AdditionalData = make(map[string]string)
		}
		e.AdditionalData[slug(k)] = strings.TrimSpace(v)
	}
	return e, nil
}

// Normalize maps every record; rejected rows land in Errors and do not stop the batch.
func Normalize(rows []Record) Result {
	var res Result
	for _, rec := range rows {
		e, err := NormalizeRow(rec)
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
			continue
		}
		res.Imported = append(res.Imported, e)
	}
	return res
}

// slug lower-cases a header and joins whitespace runs with underscores.
func slug(k string) string {
	var b strings.Builder
	inSpace := false
	for _, r := range k {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('_')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func echo(rec Record) string {
	raw, err := json.Marshal(map[string]string(rec))
	if err != nil {
		return fmt.Sprint(map[string]string(rec))
	}
	return string(raw)
}
