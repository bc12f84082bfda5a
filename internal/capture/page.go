package capture

import "wifiwatch/internal/models"

// Page is a window over the packet buffer.
type Page struct {
	Number  int // 1-based
	Total   int // at least 1
	Size    int
	Records []models.PacketRecord
}

// TotalPages returns ceil(n/size), and 1 for an empty buffer.
func TotalPages(n, size int) int {
	if size <= 0 || n <= 0 {
		return 1
	}
	return (n + size - 1) / size
}

// Slice returns page number (1-based) of buf, clamping the page number into
// range. The returned slice shares buf's backing array.
func Slice(buf []models.PacketRecord, size, number int) []models.PacketRecord {
	if size <= 0 || len(buf) == 0 {
		return nil
	}
	number = clampPage(number, TotalPages(len(buf), size))
	start := (number - 1) * size
	end := start + size
	if end > len(buf) {
		end = len(buf)
	}
	return buf[start:end]
}

// Pager tracks the displayed page number. It is not safe for concurrent use.
type Pager struct {
	size   int
	number int
}

// NewPager creates a pager at page 1.
func NewPager(size int) *Pager {
	if size <= 0 {
		size = 10
	}
	return &Pager{size: size, number: 1}
}

// Size returns the page size.
func (p *Pager) Size() int { return p.size }

// Number returns the current page number.
func (p *Pager) Number() int { return p.number }

// Next advances one page if one exists for a buffer of n packets.
func (p *Pager) Next(n int) bool {
	if p.number >= TotalPages(n, p.size) {
		return false
	}
	p.number++
	return true
}

// Prev moves back one page unless already on page 1.
func (p *Pager) Prev() bool {
	if p.number <= 1 {
		return false
	}
	p.number--
	return true
}

// Reset returns to page 1.
func (p *Pager) Reset() { p.number = 1 }

// Page returns the current window over buf. If buf shrank below the current
// page, the pager is pulled back to the last page.
func (p *Pager) Page(buf []models.PacketRecord) Page {
	total := TotalPages(len(buf), p.size)
	p.number = clampPage(p.number, total)

	window := Slice(buf, p.size, p.number)
	return Page{
		Number:  p.number,
		Total:   total,
		Size:    p.size,
		Records: append([]models.PacketRecord(nil), window...),
	}
}

func clampPage(number, total int) int {
	if number < 1 {
		return 1
	}
	if number > total {
		return total
	}
	return number
}
