package delayed_insertion

func (c *Collector[T]) Add(s T) {
	if len(c.savers) == 0 {
		return
	}

	c.mx.Lock()
	c.cache = append(c.cache, s)
	c.mx.Unlock()
}

func (c *Collector[T]) getCachedEntries() (s []T) {
	c.mx.Lock()
	s = c.cache
	c.cache = make([]T, 0, flushAmount)
	c.mx.Unlock()

	return
}
