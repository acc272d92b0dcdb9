package pool

import (
	"sync"
)

// ObjectPools содержит пулы временных буферов для переиспользования
// между таблицами и колонками
type ObjectPools struct {
	float64Pool sync.Pool
	intPool     sync.Pool
}

// Global пулы объектов
var Global = &ObjectPools{
	float64Pool: sync.Pool{
		New: func() interface{} {
			s := make([]float64, 0, 1024)
			return &s
		},
	},
	intPool: sync.Pool{
		New: func() interface{} {
			s := make([]int, 0, 1024)
			return &s
		},
	},
}

// GetFloat64s получает буфер длины n из пула. Содержимое не обнуляется.
func (p *ObjectPools) GetFloat64s(n int) *[]float64 {
	buf := p.float64Pool.Get().(*[]float64)
	if cap(*buf) < n {
		*buf = make([]float64, n)
	}
	*buf = (*buf)[:n]
	return buf
}

// PutFloat64s возвращает буфер в пул
func (p *ObjectPools) PutFloat64s(buf *[]float64) {
	*buf = (*buf)[:0]
	p.float64Pool.Put(buf)
}

// GetInts получает пустой буфер индексов из пула
func (p *ObjectPools) GetInts() *[]int {
	buf := p.intPool.Get().(*[]int)
	*buf = (*buf)[:0]
	return buf
}

// PutInts возвращает буфер индексов в пул
func (p *ObjectPools) PutInts(buf *[]int) {
	*buf = (*buf)[:0]
	p.intPool.Put(buf)
}
