package cache

import (
	"math/rand/v2"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/cachesim/mem"
	"github.com/sarchlab/cachesim/sim/hooking"
)

func buildCache(
	numLines, wordsPerLine int,
	mapping Mapping,
	associativity int,
	policy Policy,
) *Comp {
	c, err := MakeBuilder().
		WithNumLines(numLines).
		WithWordsPerLine(wordsPerLine).
		WithMapping(mapping).
		WithAssociativity(associativity).
		WithPolicy(policy).
		WithMemory(mem.NewStorage(1 << 16)).
		Build("Cache")
	Expect(err).NotTo(HaveOccurred())

	return c
}

func mustRead(c *Comp, address uint64) AccessResult {
	result, err := c.Read(address)
	Expect(err).NotTo(HaveOccurred())

	return result
}

var allPolicies = []Policy{Random, FIFO, LFU, LRU}

var _ = Describe("Comp", func() {
	var (
		mockCtrl *gomock.Controller
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	Context("building", func() {
		It("should fail without memory", func() {
			_, err := MakeBuilder().Build("Cache")

			Expect(err).To(MatchError(ErrConfiguration))
		})

		It("should fail on an invalid configuration", func() {
			_, err := MakeBuilder().
				WithNumLines(6).
				WithMapping(SetAssociative).
				WithAssociativity(4).
				WithMemory(mem.NewStorage(16)).
				Build("Cache")

			Expect(err).To(MatchError(ErrConfiguration))
		})

		It("should start with empty lines", func() {
			c := buildCache(4, 2, FullyAssociative, 0, LRU)

			snapshot := c.Snapshot()

			Expect(snapshot.Name).To(Equal("Cache"))
			Expect(snapshot.Lines).To(HaveLen(4))
			for _, l := range snapshot.Lines {
				Expect(l.Valid).To(BeFalse())
				Expect(l.Aux).To(BeZero())
			}
		})

		It("should register hooks given to the builder", func() {
			hook := NewMockHook(mockCtrl)

			c, err := MakeBuilder().
				WithMemory(mem.NewStorage(16)).
				WithHook(hook).
				Build("Cache")

			Expect(err).NotTo(HaveOccurred())
			Expect(c.Hooks()).To(ConsistOf(hook))
		})
	})

	Context("direct mapping", func() {
		It("should miss on every access of the conflicting sequence", func() {
			c := buildCache(4, 2, Direct, 0, LRU)
			expectedLines := []int{0, 1, 2, 0, 0}

			for i, addr := range []uint64{0, 2, 4, 8, 0} {
				result := mustRead(c, addr)

				Expect(result.Outcome).To(Equal(Miss))
				Expect(result.Line).To(Equal(expectedLines[i]))
			}

			ratio, err := c.HitRatio()
			Expect(err).NotTo(HaveOccurred())
			Expect(ratio).To(BeNumerically("~", 0.0))
		})

		It("should report the displaced block", func() {
			c := buildCache(4, 2, Direct, 0, LRU)
			mustRead(c, 0)

			result := mustRead(c, 8)

			Expect(result.Evicted).To(BeTrue())
			Expect(result.EvictedBlock).To(Equal(uint64(0)))
		})

		It("should always target block mod lines", func() {
			for _, policy := range allPolicies {
				c := buildCache(4, 2, Direct, 0, policy)
				rng := rand.New(rand.NewPCG(3, 4))

				for i := 0; i < 200; i++ {
					addr := rng.Uint64N(256)
					result := mustRead(c, addr)

					Expect(result.Line).To(Equal(int((addr / 2) % 4)))
				}
			}
		})

		It("should hit on another word of a resident block", func() {
			c := buildCache(4, 4, Direct, 0, Random)
			mustRead(c, 4)

			result := mustRead(c, 7)

			Expect(result.Outcome).To(Equal(Hit))
			Expect(result.Block).To(Equal(uint64(1)))
			Expect(result.Offset).To(Equal(uint64(3)))
		})
	})

	Context("fully associative FIFO", func() {
		It("should evict in insertion order", func() {
			c := buildCache(2, 1, FullyAssociative, 0, FIFO)

			r := mustRead(c, 0)
			Expect(r.Outcome).To(Equal(Miss))
			Expect(r.Evicted).To(BeFalse())

			r = mustRead(c, 1)
			Expect(r.Outcome).To(Equal(Miss))
			Expect(r.Evicted).To(BeFalse())

			r = mustRead(c, 2)
			Expect(r.Outcome).To(Equal(Miss))
			Expect(r.EvictedBlock).To(Equal(uint64(0)))

			r = mustRead(c, 1)
			Expect(r.Outcome).To(Equal(Hit))

			r = mustRead(c, 0)
			Expect(r.Outcome).To(Equal(Miss))
			Expect(r.Evicted).To(BeTrue())
			Expect(r.EvictedBlock).To(Equal(uint64(1)))
			Expect(r.Line).To(Equal(1))
		})

		It("should evict the first loaded block of a full set", func() {
			c := buildCache(4, 1, FullyAssociative, 0, FIFO)
			order := []uint64{7, 3, 9, 5}
			for _, b := range order {
				mustRead(c, b)
			}

			mustRead(c, 3)
			mustRead(c, 7)
			r := mustRead(c, 11)

			Expect(r.EvictedBlock).To(Equal(uint64(7)))
		})
	})

	Context("fully associative LFU", func() {
		It("should evict the least frequently used block", func() {
			c := buildCache(3, 1, FullyAssociative, 0, LFU)
			mustRead(c, 0)
			mustRead(c, 1)
			mustRead(c, 2)
			mustRead(c, 0)
			mustRead(c, 0)
			mustRead(c, 1)

			r := mustRead(c, 3)
			Expect(r.EvictedBlock).To(Equal(uint64(2)))
			Expect(r.Line).To(Equal(2))

			r = mustRead(c, 4)
			Expect(r.EvictedBlock).To(Equal(uint64(3)))
		})

		It("should evict the lowest line on equal counts", func() {
			c := buildCache(3, 1, FullyAssociative, 0, LFU)
			mustRead(c, 0)
			mustRead(c, 1)
			mustRead(c, 2)

			r := mustRead(c, 3)

			Expect(r.Line).To(Equal(0))
			Expect(r.EvictedBlock).To(Equal(uint64(0)))
		})
	})

	Context("fully associative LRU", func() {
		It("should evict the least recently used block", func() {
			c := buildCache(3, 1, FullyAssociative, 0, LRU)
			mustRead(c, 0)
			mustRead(c, 1)
			mustRead(c, 2)
			mustRead(c, 0)

			r := mustRead(c, 3)
			Expect(r.EvictedBlock).To(Equal(uint64(1)))

			mustRead(c, 2)
			r = mustRead(c, 4)
			Expect(r.EvictedBlock).To(Equal(uint64(0)))
		})

		It("should never evict the only block touched since the last eviction",
			func() {
				c := buildCache(4, 1, FullyAssociative, 0, LRU)
				for b := uint64(0); b < 4; b++ {
					mustRead(c, b)
				}
				mustRead(c, 4)

				for i := 0; i < 3; i++ {
					mustRead(c, 2)
				}
				r := mustRead(c, 5)

				Expect(r.EvictedBlock).NotTo(Equal(uint64(2)))
			})
	})

	Context("set associative", func() {
		It("should replace within the set of the block", func() {
			c := buildCache(4, 1, SetAssociative, 2, LRU)
			mustRead(c, 0)
			mustRead(c, 2)
			mustRead(c, 1)

			r := mustRead(c, 4)

			Expect(r.SetID).To(Equal(0))
			Expect(r.Line).To(Equal(0))
			Expect(r.EvictedBlock).To(Equal(uint64(0)))

			r = mustRead(c, 1)
			Expect(r.Outcome).To(Equal(Hit))
			Expect(r.Line).To(Equal(2))
		})

		It("should keep the other sets untouched", func() {
			c := buildCache(8, 2, SetAssociative, 4, FIFO)
			mustRead(c, 2)

			for b := uint64(0); b < 10; b += 2 {
				mustRead(c, b*2)
			}

			r := mustRead(c, 2)
			Expect(r.Outcome).To(Equal(Hit))
			Expect(r.Line).To(Equal(4))
		})
	})

	Context("cold cache", func() {
		type layout struct {
			mapping       Mapping
			associativity int
			blocks        []uint64
		}

		layouts := []layout{
			{Direct, 0, []uint64{5}},
			{FullyAssociative, 0, []uint64{9, 1, 30, 4, 12, 7, 2, 100}},
			{SetAssociative, 4, []uint64{0, 2, 4, 6}},
			{SetAssociative, 2, []uint64{3, 7}},
		}

		It("should fill empty lines before evicting", func() {
			for _, l := range layouts {
				for _, policy := range allPolicies {
					c := buildCache(8, 1, l.mapping, l.associativity, policy)
					used := map[int]bool{}

					for _, b := range l.blocks {
						r := mustRead(c, b)

						Expect(r.Outcome).To(Equal(Miss))
						Expect(r.Evicted).To(BeFalse())
						Expect(used).NotTo(HaveKey(r.Line))
						used[r.Line] = true
					}

					Expect(c.Statistics().Evictions).To(BeZero())
				}
			}
		})
	})

	Context("any workload", func() {
		It("should never hold a block twice", func() {
			mappings := []struct {
				mapping       Mapping
				associativity int
			}{
				{Direct, 0},
				{FullyAssociative, 0},
				{SetAssociative, 2},
				{SetAssociative, 4},
			}

			for _, m := range mappings {
				for _, policy := range allPolicies {
					c := buildCache(8, 2, m.mapping, m.associativity, policy)
					rng := rand.New(rand.NewPCG(11, uint64(policy)))

					for i := 0; i < 500; i++ {
						addr := rng.Uint64N(64)
						if rng.IntN(2) == 0 {
							_, err := c.Write(addr, addr)
							Expect(err).NotTo(HaveOccurred())
						} else {
							mustRead(c, addr)
						}

						Expect(c.CheckInvariants()).To(Succeed())
					}
				}
			}
		})
	})

	Context("random policy", func() {
		It("should make the same choices with the same seed", func() {
			build := func() *Comp {
				c, err := MakeBuilder().
					WithNumLines(4).
					WithWordsPerLine(1).
					WithMapping(FullyAssociative).
					WithPolicy(Random).
					WithRandSeed(99).
					WithMemory(mem.NewStorage(1024)).
					Build("Cache")
				Expect(err).NotTo(HaveOccurred())

				return c
			}

			a, b := build(), build()
			for addr := uint64(0); addr < 100; addr++ {
				ra := mustRead(a, addr%13)
				rb := mustRead(b, addr%13)
				Expect(ra).To(Equal(rb))
			}
		})

		It("should not let failed accesses change later choices", func() {
			build := func() *Comp {
				c, err := MakeBuilder().
					WithNumLines(4).
					WithWordsPerLine(1).
					WithMapping(FullyAssociative).
					WithPolicy(Random).
					WithRandSeed(7).
					WithMemory(mem.NewStorage(16)).
					Build("Cache")
				Expect(err).NotTo(HaveOccurred())

				return c
			}

			a, b := build(), build()
			for addr := uint64(0); addr < 100; addr++ {
				if addr%5 == 0 {
					_, err := a.Read(1000 + addr)
					Expect(err).To(MatchError(mem.ErrAddressOutOfRange))
				}

				ra := mustRead(a, addr%11)
				rb := mustRead(b, addr%11)
				Expect(ra).To(Equal(rb))
			}

			Expect(a.Snapshot()).To(Equal(b.Snapshot()))
		})
	})

	Context("hit ratio", func() {
		It("should fail before any access", func() {
			c := buildCache(4, 1, Direct, 0, LRU)

			_, err := c.HitRatio()

			Expect(err).To(MatchError(ErrNoAccessesYet))
		})

		It("should be the percentage of hits", func() {
			c := buildCache(4, 1, FullyAssociative, 0, LRU)
			for _, addr := range []uint64{0, 1, 0, 1, 0, 2, 3} {
				mustRead(c, addr)
			}

			ratio, err := c.HitRatio()

			Expect(err).NotTo(HaveOccurred())
			Expect(ratio).To(BeNumerically("~", 100.0*3/7, 1e-9))
			Expect(c.History()).To(Equal(
				[]Outcome{Miss, Miss, Hit, Hit, Hit, Miss, Miss}))
		})
	})

	Context("memory", func() {
		var (
			memory *MockMemory
			c      *Comp
		)

		BeforeEach(func() {
			memory = NewMockMemory(mockCtrl)

			var err error
			c, err = MakeBuilder().
				WithNumLines(2).
				WithWordsPerLine(2).
				WithMapping(FullyAssociative).
				WithPolicy(LRU).
				WithMemory(memory).
				Build("Cache")
			Expect(err).NotTo(HaveOccurred())
		})

		It("should read the word from memory", func() {
			memory.EXPECT().GetContent(uint64(5)).Return(uint64(50), nil)

			r, err := c.Read(5)

			Expect(err).NotTo(HaveOccurred())
			Expect(r.Value).To(Equal(uint64(50)))
		})

		It("should write through on a miss and on a hit", func() {
			memory.EXPECT().SetContent(uint64(4), uint64(1)).Return(nil)
			memory.EXPECT().SetContent(uint64(5), uint64(2)).Return(nil)

			r, err := c.Write(4, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Outcome).To(Equal(Miss))

			r, err = c.Write(5, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Outcome).To(Equal(Hit))
			Expect(r.Value).To(Equal(uint64(2)))
		})

		It("should leave the cache unchanged on a memory error", func() {
			memory.EXPECT().
				GetContent(uint64(99)).
				Return(uint64(0), mem.ErrAddressOutOfRange)

			_, err := c.Read(99)

			Expect(err).To(MatchError(mem.ErrAddressOutOfRange))
			Expect(c.History()).To(BeEmpty())
			Expect(c.Snapshot().Lines[0].Valid).To(BeFalse())
		})

		It("should not write through when no line can receive the block", func() {
			c.victimFinder.policy = Policy(99)

			_, err := c.Write(4, 1)

			Expect(err).To(MatchError(ErrInvariantViolation))
			Expect(c.History()).To(BeEmpty())
			Expect(c.Statistics().Accesses).To(BeZero())
		})

		It("should reject unknown access modes", func() {
			_, err := c.Access(AccessMode(7), 0, 0)

			Expect(err).To(MatchError(ErrUnknownAccessMode))
			Expect(c.Statistics().Accesses).To(BeZero())
		})
	})

	It("should propagate out of range addresses from the storage", func() {
		c, err := MakeBuilder().
			WithMemory(mem.NewStorage(16)).
			Build("Cache")
		Expect(err).NotTo(HaveOccurred())

		_, err = c.Write(16, 3)

		Expect(err).To(MatchError(mem.ErrAddressOutOfRange))
		_, err = c.HitRatio()
		Expect(err).To(MatchError(ErrNoAccessesYet))
	})

	Context("hooks", func() {
		It("should invoke the hook after every access", func() {
			c := buildCache(1, 1, Direct, 0, LRU)
			hook := NewMockHook(mockCtrl)
			c.AcceptHook(hook)

			hook.EXPECT().Func(gomock.Any()).Do(func(ctx hooking.HookCtx) {
				Expect(ctx.Pos).To(Equal(HookPosAccess))
				Expect(ctx.Domain).To(BeIdenticalTo(c))
				Expect(ctx.Item.(AccessResult).Seq).To(Equal(uint64(1)))
			})

			mustRead(c, 0)
		})

		It("should report evictions before the access", func() {
			c := buildCache(1, 1, Direct, 0, LRU)
			positions := []*hooking.HookPos{}
			c.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
				positions = append(positions, ctx.Pos)
			}))

			mustRead(c, 0)
			mustRead(c, 1)

			Expect(positions).To(Equal([]*hooking.HookPos{
				HookPosAccess, HookPosEvict, HookPosAccess,
			}))
		})
	})

	Context("hooks from concurrent accesses", func() {
		It("should deliver every sequence number once", func() {
			c := buildCache(4, 2, SetAssociative, 2, LRU)

			var lock sync.Mutex
			seen := map[uint64]int{}
			c.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
				if ctx.Pos != HookPosAccess {
					return
				}

				lock.Lock()
				seen[ctx.Item.(AccessResult).Seq]++
				lock.Unlock()
			}))

			var wg sync.WaitGroup
			for g := 0; g < 4; g++ {
				wg.Add(1)

				go func(g int) {
					defer GinkgoRecover()
					defer wg.Done()

					for i := 0; i < 100; i++ {
						mustRead(c, uint64((g*100+i)%32))
					}
				}(g)
			}
			wg.Wait()

			Expect(seen).To(HaveLen(400))
			for seq := uint64(1); seq <= 400; seq++ {
				Expect(seen[seq]).To(Equal(1))
			}
		})
	})

	Context("statistics and snapshot", func() {
		It("should count reads, writes and evictions", func() {
			c := buildCache(2, 1, FullyAssociative, 0, FIFO)
			mustRead(c, 0)
			_, _ = c.Write(1, 10)
			_, _ = c.Write(0, 11)
			mustRead(c, 2)

			Expect(c.Statistics()).To(Equal(Statistics{
				Accesses:  4,
				Reads:     2,
				Writes:    2,
				Hits:      1,
				Misses:    3,
				Evictions: 1,
			}))
		})

		It("should expose the policy state of the lines", func() {
			c := buildCache(2, 4, FullyAssociative, 0, LFU)
			mustRead(c, 8)
			mustRead(c, 9)

			lines := c.Snapshot().Lines

			Expect(lines[0]).To(Equal(LineState{
				Index: 0, SetID: 0, Valid: true,
				Block: 2, FirstAddress: 8, Aux: 2,
			}))
			Expect(lines[1].Valid).To(BeFalse())
		})

		It("should not be changed through the snapshot", func() {
			c := buildCache(2, 1, FullyAssociative, 0, LRU)
			mustRead(c, 0)

			snapshot := c.Snapshot()
			snapshot.Lines[0].Block = 77
			snapshot.Lines[1].Valid = true

			again := c.Snapshot()
			Expect(again.Lines[0].Block).To(Equal(uint64(0)))
			Expect(again.Lines[1].Valid).To(BeFalse())
		})
	})

	It("should return to the cold state on reset", func() {
		c := buildCache(2, 1, FullyAssociative, 0, FIFO)
		mustRead(c, 0)
		mustRead(c, 1)
		mustRead(c, 2)

		c.Reset()

		_, err := c.HitRatio()
		Expect(err).To(MatchError(ErrNoAccessesYet))
		Expect(c.Statistics()).To(BeZero())

		r := mustRead(c, 5)
		Expect(r.Line).To(Equal(0))
		Expect(r.Evicted).To(BeFalse())
		Expect(c.Snapshot().Lines[0].Aux).To(Equal(uint64(1)))
	})
})
