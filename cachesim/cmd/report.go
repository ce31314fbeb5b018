package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/sarchlab/cachesim/mem"
	"github.com/sarchlab/cachesim/mem/cache"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Right)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

type reportedCache interface {
	Snapshot() cache.Snapshot
	HitRatio() (float64, error)
}

// renderReport lists every word held by the cache, with its content in the
// memory, followed by the hit ratio.
func renderReport(c reportedCache, memory mem.Memory) (string, error) {
	snapshot := c.Snapshot()
	words := uint64(snapshot.Config.WordsPerLine)

	rows := make([][]string, 0, len(snapshot.Lines)*int(words))
	for _, l := range snapshot.Lines {
		lineID := strconv.Itoa(l.Index)

		if !l.Valid {
			for range words {
				rows = append(rows, []string{lineID, "-", "-", "-"})
			}

			continue
		}

		for address := l.FirstAddress; address < l.FirstAddress+words; address++ {
			content := "-"

			value, err := memory.GetContent(address)
			if err == nil {
				content = strconv.FormatUint(value, 10)
			} else if !errors.Is(err, mem.ErrAddressOutOfRange) {
				return "", err
			}

			rows = append(rows, []string{
				lineID,
				strconv.FormatUint(l.Block, 10),
				strconv.FormatUint(address, 10),
				content,
			})
		}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Line", "Block", "Address", "Content").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}

			return cellStyle
		})

	b := strings.Builder{}
	b.WriteString(titleStyle.Render("CACHE "+snapshot.Name) + "\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("%s, %s, %d lines of %d words",
		snapshot.Config.Mapping, snapshot.Config.Policy,
		snapshot.Config.NumLines, snapshot.Config.WordsPerLine)) + "\n")
	b.WriteString(t.Render() + "\n")

	st := snapshot.Statistics
	b.WriteString(fmt.Sprintf(
		"Accesses: %d (%d reads, %d writes), hits: %d, misses: %d, evictions: %d\n",
		st.Accesses, st.Reads, st.Writes, st.Hits, st.Misses, st.Evictions))

	ratio, err := c.HitRatio()
	switch {
	case errors.Is(err, cache.ErrNoAccessesYet):
		b.WriteString("Hit ratio: n/a, no accesses yet\n")
	case err != nil:
		return "", err
	default:
		b.WriteString(fmt.Sprintf("Hit ratio: %.2f%%\n", ratio))
	}

	return b.String(), nil
}
