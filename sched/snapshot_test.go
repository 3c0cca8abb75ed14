package sched

import (
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"
)

var _ = Describe("SnapshotWriter", func() {
	var (
		dir    string
		writer *SnapshotWriter
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		writer = NewSnapshotWriter(dir, zerolog.Nop())
	})

	readLines := func(name string) []string {
		data, err := os.ReadFile(filepath.Join(dir, name))
		Expect(err).NotTo(HaveOccurred())
		return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	}

	It("should write the three dump files", func() {
		writer.Write(2,
			[]ScheduledTrigger{scheduled(1, 3, 0), scheduled(2, 4, 1)},
			[]ScheduledTrigger{scheduled(3, 2, 0)},
		)

		queueLines := readLines("trigger_queue.txt")
		Expect(queueLines[0]).To(Equal("total: 2"))
		Expect(queueLines).To(HaveLen(3))
		Expect(queueLines[1]).To(ContainSubstring("id=1"))
		Expect(queueLines[1]).To(ContainSubstring("tick=3"))

		awaitingLines := readLines("awaiting_response.txt")
		Expect(awaitingLines[0]).To(Equal("total: 1"))
		Expect(awaitingLines[1]).To(ContainSubstring("id=3"))

		stack, err := os.ReadFile(filepath.Join(dir, "stack_trace.txt"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(stack)).To(ContainSubstring("goroutine"))
	})

	It("should report the full total for a truncated queue sample", func() {
		writer.Write(5000,
			[]ScheduledTrigger{scheduled(1, 3, 0)},
			nil,
		)

		Expect(readLines("trigger_queue.txt")[0]).To(Equal("total: 5000"))
	})

	It("should write at most once", func() {
		writer.Write(1, []ScheduledTrigger{scheduled(1, 3, 0)}, nil)

		Expect(os.Remove(filepath.Join(dir, "trigger_queue.txt"))).To(Succeed())

		writer.Write(1, []ScheduledTrigger{scheduled(2, 9, 0)}, nil)

		Expect(filepath.Join(dir, "trigger_queue.txt")).NotTo(BeAnExistingFile())
	})
})
