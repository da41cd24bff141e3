package kvstore

// prefixStore scopes every key of a parent store under a namespace.
type prefixStore struct {
	parent Store
	prefix []byte
}

// Prefix returns a Store whose keys live under namespace + "/" in parent.
// Separate auctions use separate namespaces of the same database.
func Prefix(parent Store, namespace string) Store {
	return &prefixStore{
		parent: parent,
		prefix: []byte(namespace + "/"),
	}
}

func (p *prefixStore) key(k []byte) []byte {
	out := make([]byte, 0, len(p.prefix)+len(k))
	out = append(out, p.prefix...)
	return append(out, k...)
}

func (p *prefixStore) Get(key []byte) ([]byte, error) {
	return p.parent.Get(p.key(key))
}

func (p *prefixStore) Has(key []byte) (bool, error) {
	return p.parent.Has(p.key(key))
}

func (p *prefixStore) Write(b *Batch) error {
	var scoped Batch
	b.Replay(prefixReplay{p: p, out: &scoped})
	return p.parent.Write(&scoped)
}

type prefixReplay struct {
	p   *prefixStore
	out *Batch
}

func (r prefixReplay) Put(key, value []byte) {
	r.out.Put(r.p.key(key), value)
}

func (r prefixReplay) Delete(key []byte) {
	r.out.Delete(r.p.key(key))
}
