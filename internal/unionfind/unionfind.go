// Package unionfind implements an array-based disjoint-set over the
// integers 0..n-1, used to cluster cells by visual similarity.
package unionfind

// DisjointSet partitions 0..n-1 into mergeable sets. Find uses path
// halving and Union merges by size, so sequences of operations run in
// near-constant amortized time.
type DisjointSet struct {
	parent []int
	size   []int
}

// New returns a partition where every element is its own set.
func New(n int) *DisjointSet {
	d := &DisjointSet{
		parent: make([]int, n),
		size:   make([]int, n),
	}
	for i := range d.parent {
		d.parent[i] = i
		d.size[i] = 1
	}
	return d
}

// Len returns the number of elements in the partition.
func (d *DisjointSet) Len() int { return len(d.parent) }

// Find returns the representative of x's set.
func (d *DisjointSet) Find(x int) int {
	for d.parent[x] != x {
		d.parent[x] = d.parent[d.parent[x]]
		x = d.parent[x]
	}
	return x
}

// Union merges the sets containing a and b.
func (d *DisjointSet) Union(a, b int) {
	ra, rb := d.Find(a), d.Find(b)
	if ra == rb {
		return
	}
	if d.size[ra] < d.size[rb] {
		ra, rb = rb, ra
	}
	d.parent[rb] = ra
	d.size[ra] += d.size[rb]
}

// Same reports whether a and b are in the same set.
func (d *DisjointSet) Same(a, b int) bool {
	return d.Find(a) == d.Find(b)
}

// SetSize returns the size of the set containing x.
func (d *DisjointSet) SetSize(x int) int {
	return d.size[d.Find(x)]
}
