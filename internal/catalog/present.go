package catalog

import (
	"math"
	"strconv"
	"strings"

	"github.com/iconidentify/vidshelf/internal/domain"
)

// TopN is the number of frequency table rows shown to callers.
const TopN = 5

// Trim returns a copy of the first n rows of table. It never re-sorts and
// never mutates its input.
func Trim(table domain.FrequencyTable, n int) domain.FrequencyTable {
	if n < 0 {
		n = 0
	}
	if len(table) < n {
		n = len(table)
	}
	out := make(domain.FrequencyTable, n)
	copy(out, table[:n])
	return out
}

// TrimTop trims table to TopN rows.
func TrimTop(table domain.FrequencyTable) domain.FrequencyTable {
	return Trim(table, TopN)
}

// Present returns a copy of stat with every frequency table cut to n rows.
func Present(stat *domain.Statistic, n int) *domain.Statistic {
	out := stat.Clone()
	for _, kind := range domain.LabelKinds {
		out.SetTable(kind, Trim(stat.Table(kind), n))
	}
	return out
}

// PresentUploader returns a copy of u with every frequency table cut to n
// rows.
func PresentUploader(u *domain.Uploader, n int) *domain.Uploader {
	out := *u
	out.Tags = Trim(u.Tags, n)
	out.Categories = Trim(u.Categories, n)
	out.Hashtags = Trim(u.Hashtags, n)
	return &out
}

// ParsePage converts a raw page parameter to a zero-based page number. It
// reads the leading decimal digits and ignores the rest, so "3abc" is page
// 3. Input without leading digits, including negative numbers, yields page
// 0. Numbers too large for an int saturate to math.MaxInt.
func ParsePage(raw string) int {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "+")
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	page, err := strconv.Atoi(s[:end])
	if err != nil {
		return math.MaxInt
	}
	return page
}

// PageBounds returns the skip and limit for a zero-based page. A page whose
// offset does not fit in an int64 gets a zero limit, so it reads as empty.
func PageBounds(page, pageSize int) (offset, limit int64) {
	if page < 0 {
		page = 0
	}
	if pageSize <= 0 {
		return 0, 0
	}
	if int64(page) > math.MaxInt64/int64(pageSize) {
		return math.MaxInt64, 0
	}
	return int64(page) * int64(pageSize), int64(pageSize)
}
