package models

import (
	"sort"
	"time"
)

// NodeID indexes a CrawlNode inside its Hierarchy
type NodeID int

// NoParent marks the root node
const NoParent NodeID = -1

// CrawlNode represents one visited page in the crawl tree
type CrawlNode struct {
	ID       NodeID   `json:"id"`
	URL      string   `json:"url"`
	Parent   NodeID   `json:"parent"`
	Depth    int      `json:"depth"`
	Children []NodeID `json:"children"`
	Title    string   `json:"title,omitempty"`
	Failed   bool     `json:"failed,omitempty"`
}

// Hierarchy is an arena of crawl nodes keyed by id, with an index by
// canonical URL. It is not safe for concurrent use.
type Hierarchy struct {
	nodes []CrawlNode
	index map[string]NodeID
}

// NewHierarchy returns an empty hierarchy
func NewHierarchy() *Hierarchy {
	return &Hierarchy{index: make(map[string]NodeID)}
}

// Add records url under parent and returns its id. A url that is already
// present keeps its first parent edge and the existing id is returned.
func (h *Hierarchy) Add(url string, parent NodeID) NodeID {
	if id, ok := h.index[url]; ok {
		return id
	}
	depth := 0
	if parent != NoParent {
		depth = h.nodes[parent].Depth + 1
	}
	id := NodeID(len(h.nodes))
	h.nodes = append(h.nodes, CrawlNode{
		ID:       id,
		URL:      url,
		Parent:   parent,
		Depth:    depth,
		Children: []NodeID{},
	})
	h.index[url] = id
	if parent != NoParent {
		h.nodes[parent].Children = append(h.nodes[parent].Children, id)
	}
	return id
}

// Lookup returns the id of url
func (h *Hierarchy) Lookup(url string) (NodeID, bool) {
	id, ok := h.index[url]
	return id, ok
}

// Node returns a copy of the node with the given id
func (h *Hierarchy) Node(id NodeID) CrawlNode {
	n := h.nodes[id]
	n.Children = append([]NodeID(nil), n.Children...)
	return n
}

// SetTitle stores the page title of a node
func (h *Hierarchy) SetTitle(id NodeID, title string) {
	h.nodes[id].Title = title
}

// MarkFailed flags a node whose fetch failed terminally
func (h *Hierarchy) MarkFailed(id NodeID) {
	h.nodes[id].Failed = true
}

// Len returns the number of nodes
func (h *Hierarchy) Len() int {
	return len(h.nodes)
}

// Nodes returns a copy of every node in insertion order
func (h *Hierarchy) Nodes() []CrawlNode {
	out := make([]CrawlNode, 0, len(h.nodes))
	for i := range h.nodes {
		out = append(out, h.Node(NodeID(i)))
	}
	return out
}

// URLs returns every node URL sorted lexically
func (h *Hierarchy) URLs() []string {
	urls := make([]string, 0, len(h.nodes))
	for _, n := range h.nodes {
		urls = append(urls, n.URL)
	}
	sort.Strings(urls)
	return urls
}

// DepthHistogram counts nodes per depth
func (h *Hierarchy) DepthHistogram() map[int]int {
	hist := make(map[int]int)
	for _, n := range h.nodes {
		hist[n.Depth]++
	}
	return hist
}

// TreeNode is the nested form of the hierarchy used in reports
type TreeNode struct {
	URL      string      `json:"url" yaml:"url"`
	Depth    int         `json:"depth" yaml:"depth"`
	Title    string      `json:"title,omitempty" yaml:"title,omitempty"`
	Failed   bool        `json:"failed,omitempty" yaml:"failed,omitempty"`
	Children []*TreeNode `json:"children" yaml:"children"`
}

// Tree builds the nested tree rooted at the first node. It returns nil for an
// empty hierarchy.
func (h *Hierarchy) Tree() *TreeNode {
	if len(h.nodes) == 0 {
		return nil
	}
	return h.subtree(0)
}

func (h *Hierarchy) subtree(id NodeID) *TreeNode {
	n := h.nodes[id]
	t := &TreeNode{
		URL:      n.URL,
		Depth:    n.Depth,
		Title:    n.Title,
		Failed:   n.Failed,
		Children: make([]*TreeNode, 0, len(n.Children)),
	}
	for _, c := range n.Children {
		t.Children = append(t.Children, h.subtree(c))
	}
	return t
}

// CrawlResult contains the results of a crawl operation
type CrawlResult struct {
	SeedURL    string        `json:"seed_url"`
	Domain     string        `json:"domain"`
	URLs       []string      `json:"urls"`
	Hierarchy  *Hierarchy    `json:"-"`
	TotalPages int           `json:"total_pages"`
	ErrorCount int           `json:"error_count"`
	CrawlTime  time.Time     `json:"crawl_time"`
	Duration   time.Duration `json:"duration"`
}
