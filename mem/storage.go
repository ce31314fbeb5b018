// Package mem provides the main memory that sits behind the simulated cache.
package mem

import (
	"errors"
	"fmt"
)

// ErrAddressOutOfRange is returned when an access falls outside the capacity
// of a storage.
var ErrAddressOutOfRange = errors.New("address out of range")

// Memory defines the content interface of the main memory. The cache reads
// words through it and writes words through it on every store.
type Memory interface {
	GetContent(address uint64) (uint64, error)
	SetContent(address uint64, value uint64) error
}

// A Storage keeps the words of the simulated main memory.
//
// The storage is word addressed. It manages the words in units, similar to
// pages. A unit that is never touched by GetContent or SetContent is never
// allocated, so large capacities are cheap.
type Storage struct {
	unitSize uint64
	capacity uint64
	pattern  func(address uint64) uint64
	data     map[uint64][]uint64
}

// NewStorage creates a storage that holds capacity words, all zero.
func NewStorage(capacity uint64) *Storage {
	return NewStorageWithPattern(capacity, nil)
}

// NewStorageWithPattern creates a storage that holds capacity words. Each word
// that has never been written reads as pattern(address). A nil pattern reads
// as zero.
func NewStorageWithPattern(
	capacity uint64,
	pattern func(address uint64) uint64,
) *Storage {
	s := new(Storage)

	s.unitSize = 4096
	s.capacity = capacity
	s.pattern = pattern
	s.data = make(map[uint64][]uint64)

	return s
}

// Capacity returns the number of words the storage can hold.
func (s *Storage) Capacity() uint64 {
	return s.capacity
}

// GetContent returns the word stored at address.
func (s *Storage) GetContent(address uint64) (uint64, error) {
	unit, err := s.createOrGetStorageUnit(address)
	if err != nil {
		return 0, err
	}

	_, inUnitAddr := s.parseAddress(address)

	return unit[inUnitAddr], nil
}

// SetContent stores value at address.
func (s *Storage) SetContent(address uint64, value uint64) error {
	unit, err := s.createOrGetStorageUnit(address)
	if err != nil {
		return err
	}

	_, inUnitAddr := s.parseAddress(address)
	unit[inUnitAddr] = value

	return nil
}

// createOrGetStorageUnit retrieves a storage unit if the unit has been created
// before. Otherwise it initializes the unit, applying the pattern.
func (s *Storage) createOrGetStorageUnit(address uint64) ([]uint64, error) {
	if address >= s.capacity {
		return nil, fmt.Errorf("%w: address %d, capacity %d words",
			ErrAddressOutOfRange, address, s.capacity)
	}

	baseAddr, _ := s.parseAddress(address)

	unit, ok := s.data[baseAddr]
	if !ok {
		unit = make([]uint64, s.unitSize)
		if s.pattern != nil {
			for i := range unit {
				unit[i] = s.pattern(baseAddr + uint64(i))
			}
		}

		s.data[baseAddr] = unit
	}

	return unit, nil
}

func (s *Storage) parseAddress(addr uint64) (baseAddr, inUnitAddr uint64) {
	inUnitAddr = addr % s.unitSize
	baseAddr = addr - inUnitAddr

	return
}
