package proc

import (
	"github.com/mvkh/linux-debugger/pkg/elf"
)

// Stoppoint is the common surface of breakpoint sites and watchpoints held
// in a StoppointCollection.
type Stoppoint interface {
	ID() int32
	Address() elf.VirtAddr
	IsEnabled() bool
	Disable() error
}

// StoppointCollection owns a set of stoppoints keyed by id and by address,
// in insertion order. At most one stoppoint per address may exist in one
// collection; the creator enforces this before pushing.
type StoppointCollection[T Stoppoint] struct {
	points []T
}

// Push takes ownership of the stoppoint.
func (c *StoppointCollection[T]) Push(p T) T {
	c.points = append(c.points, p)
	return p
}

func (c *StoppointCollection[T]) findByID(id int32) int {
	for i, p := range c.points {
		if p.ID() == id {
			return i
		}
	}
	return -1
}

func (c *StoppointCollection[T]) findByAddress(addr elf.VirtAddr) int {
	for i, p := range c.points {
		if p.Address() == addr {
			return i
		}
	}
	return -1
}

// ContainsID reports whether a stoppoint with the given id exists.
func (c *StoppointCollection[T]) ContainsID(id int32) bool {
	return c.findByID(id) >= 0
}

// ContainsAddress reports whether a stoppoint exists at the given address.
func (c *StoppointCollection[T]) ContainsAddress(addr elf.VirtAddr) bool {
	return c.findByAddress(addr) >= 0
}

// EnabledStoppointAtAddress reports whether an enabled stoppoint exists at
// the given address.
func (c *StoppointCollection[T]) EnabledStoppointAtAddress(addr elf.VirtAddr) bool {
	i := c.findByAddress(addr)
	return i >= 0 && c.points[i].IsEnabled()
}

// GetByID returns the stoppoint with the given id.
func (c *StoppointCollection[T]) GetByID(id int32) (T, error) {
	var zero T
	i := c.findByID(id)
	if i < 0 {
		return zero, StoppointNotFoundError{What: "id"}
	}
	return c.points[i], nil
}

// GetByAddress returns the stoppoint at the given address.
func (c *StoppointCollection[T]) GetByAddress(addr elf.VirtAddr) (T, error) {
	var zero T
	i := c.findByAddress(addr)
	if i < 0 {
		return zero, StoppointNotFoundError{What: "address"}
	}
	return c.points[i], nil
}

// GetInRegion returns all stoppoints whose address lies in [low, high).
func (c *StoppointCollection[T]) GetInRegion(low, high elf.VirtAddr) []T {
	var r []T
	for _, p := range c.points {
		if low <= p.Address() && p.Address() < high {
			r = append(r, p)
		}
	}
	return r
}

// RemoveByID disables and drops the stoppoint with the given id.
func (c *StoppointCollection[T]) RemoveByID(id int32) error {
	i := c.findByID(id)
	if i < 0 {
		return StoppointNotFoundError{What: "id"}
	}
	return c.removeAt(i)
}

// RemoveByAddress disables and drops the stoppoint at the given address.
func (c *StoppointCollection[T]) RemoveByAddress(addr elf.VirtAddr) error {
	i := c.findByAddress(addr)
	if i < 0 {
		return StoppointNotFoundError{What: "address"}
	}
	return c.removeAt(i)
}

func (c *StoppointCollection[T]) removeAt(i int) error {
	err := c.points[i].Disable()
	c.points = append(c.points[:i], c.points[i+1:]...)
	return err
}

// ForEach applies f to every stoppoint in insertion order.
func (c *StoppointCollection[T]) ForEach(f func(T)) {
	for _, p := range c.points {
		f(p)
	}
}

// Size returns the number of stoppoints.
func (c *StoppointCollection[T]) Size() int { return len(c.points) }

// Empty reports whether the collection holds no stoppoints.
func (c *StoppointCollection[T]) Empty() bool { return len(c.points) == 0 }
