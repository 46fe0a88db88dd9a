package catalog

type Source interface {
	Get(id string) (Definition, error)
	All() []Definition
	Next(id string) (Definition, bool)
	Fingerprint(id string) uint64
}
