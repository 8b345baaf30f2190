package hashring

import "log/slog"

// traceRing contains hooks called during ring mutation.
// Any hook may be nil.
type traceRing struct {
	OnInsert    func(*point) traceRingInsert
	OnDelete    func(*point) traceRingDelete
	OnFix       func(*point) traceRingFix
	OnFixNeeded func(*point)
}

type traceRingInsert struct {
	OnDone      func(bool)
	OnCollision func(*point)
}

type traceRingDelete struct {
	OnDone        func(bool)
	OnProcessing  func(*point) func()
	OnTwinDelete  func(p *point)
	OnTwinRestore func(p *point)
}

type traceRingFix struct {
	OnDone func()
}

// Compose returns a new traceRing which has functional fields composed
// both from t and x.
func (t traceRing) Compose(x traceRing) (ret traceRing) {
	switch {
	case t.OnInsert == nil:
		ret.OnInsert = x.OnInsert
	case x.OnInsert == nil:
		ret.OnInsert = t.OnInsert
	default:
		h1, h2 := t.OnInsert, x.OnInsert
		ret.OnInsert = func(p *point) traceRingInsert {
			return h1(p).Compose(h2(p))
		}
	}
	switch {
	case t.OnDelete == nil:
		ret.OnDelete = x.OnDelete
	case x.OnDelete == nil:
		ret.OnDelete = t.OnDelete
	default:
		h1, h2 := t.OnDelete, x.OnDelete
		ret.OnDelete = func(p *point) traceRingDelete {
			return h1(p).Compose(h2(p))
		}
	}
	switch {
	case t.OnFix == nil:
		ret.OnFix = x.OnFix
	case x.OnFix == nil:
		ret.OnFix = t.OnFix
	default:
		h1, h2 := t.OnFix, x.OnFix
		ret.OnFix = func(p *point) traceRingFix {
			return h1(p).Compose(h2(p))
		}
	}
	ret.OnFixNeeded = composePointHook(t.OnFixNeeded, x.OnFixNeeded)
	return ret
}

func (t traceRingInsert) Compose(x traceRingInsert) (ret traceRingInsert) {
	ret.OnDone = composeBoolHook(t.OnDone, x.OnDone)
	ret.OnCollision = composePointHook(t.OnCollision, x.OnCollision)
	return ret
}

func (t traceRingDelete) Compose(x traceRingDelete) (ret traceRingDelete) {
	ret.OnDone = composeBoolHook(t.OnDone, x.OnDone)
	switch {
	case t.OnProcessing == nil:
		ret.OnProcessing = x.OnProcessing
	case x.OnProcessing == nil:
		ret.OnProcessing = t.OnProcessing
	default:
		h1, h2 := t.OnProcessing, x.OnProcessing
		ret.OnProcessing = func(p *point) func() {
			r1, r2 := h1(p), h2(p)
			return func() {
				if r1 != nil {
					r1()
				}
				if r2 != nil {
					r2()
				}
			}
		}
	}
	ret.OnTwinDelete = composePointHook(t.OnTwinDelete, x.OnTwinDelete)
	ret.OnTwinRestore = composePointHook(t.OnTwinRestore, x.OnTwinRestore)
	return ret
}

func (t traceRingFix) Compose(x traceRingFix) (ret traceRingFix) {
	switch {
	case t.OnDone == nil:
		ret.OnDone = x.OnDone
	case x.OnDone == nil:
		ret.OnDone = t.OnDone
	default:
		h1, h2 := t.OnDone, x.OnDone
		ret.OnDone = func() {
			h1()
			h2()
		}
	}
	return ret
}

func composePointHook(h1, h2 func(*point)) func(*point) {
	switch {
	case h1 == nil:
		return h2
	case h2 == nil:
		return h1
	}
	return func(p *point) {
		h1(p)
		h2(p)
	}
}

func composeBoolHook(h1, h2 func(bool)) func(bool) {
	switch {
	case h1 == nil:
		return h2
	case h2 == nil:
		return h1
	}
	return func(b bool) {
		h1(b)
		h2(b)
	}
}

func (t traceRing) onInsert(p *point) traceRingInsert {
	if t.OnInsert == nil {
		return traceRingInsert{}
	}
	return t.OnInsert(p)
}

func (t traceRing) onDelete(p *point) traceRingDelete {
	if t.OnDelete == nil {
		return traceRingDelete{}
	}
	return t.OnDelete(p)
}

func (t traceRing) onFix(p *point) traceRingFix {
	if t.OnFix == nil {
		return traceRingFix{}
	}
	return t.OnFix(p)
}

func (t traceRing) onFixNeeded(p *point) {
	if t.OnFixNeeded != nil {
		t.OnFixNeeded(p)
	}
}

func (t traceRingInsert) onDone(inserted bool) {
	if t.OnDone != nil {
		t.OnDone(inserted)
	}
}

func (t traceRingInsert) onCollision(p *point) {
	if t.OnCollision != nil {
		t.OnCollision(p)
	}
}

func (t traceRingDelete) onDone(deleted bool) {
	if t.OnDone != nil {
		t.OnDone(deleted)
	}
}

func (t traceRingDelete) onProcessing(p *point) func() {
	if t.OnProcessing == nil {
		return func() {}
	}
	if done := t.OnProcessing(p); done != nil {
		return done
	}
	return func() {}
}

func (t traceRingDelete) onTwinDelete(p *point) {
	if t.OnTwinDelete != nil {
		t.OnTwinDelete(p)
	}
}

func (t traceRingDelete) onTwinRestore(p *point) {
	if t.OnTwinRestore != nil {
		t.OnTwinRestore(p)
	}
}

func (t traceRingFix) onDone() {
	if t.OnDone != nil {
		t.OnDone()
	}
}

// logTrace returns hooks reporting collisions to the given logger.
func logTrace(log *slog.Logger) traceRing {
	return traceRing{
		OnInsert: func(p *point) traceRingInsert {
			return traceRingInsert{
				OnCollision: func(prev *point) {
					log.Debug("hashring: point collision",
						slog.Uint64("value", p.value()),
						slog.String("node", p.bucket.node),
						slog.Int("index", p.index),
						slog.String("prev_node", prev.bucket.node),
						slog.Int("prev_index", prev.index),
					)
				},
			}
		},
		OnDelete: func(p *point) traceRingDelete {
			return traceRingDelete{
				OnTwinRestore: func(twin *point) {
					log.Debug("hashring: restoring collided point",
						slog.String("node", twin.bucket.node),
						slog.Int("index", twin.index),
					)
				},
			}
		},
		OnFix: func(p *point) traceRingFix {
			return traceRingFix{
				OnDone: func() {
					log.Debug("hashring: point moved to next generation",
						slog.String("node", p.bucket.node),
						slog.Int("index", p.index),
						slog.Int("generation", p.generation()),
						slog.Uint64("value", p.value()),
					)
				},
			}
		},
	}
}
