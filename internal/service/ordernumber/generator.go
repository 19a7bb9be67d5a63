package ordernumber

import (
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/rentorders/internal/domain"
)

const (
	letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits  = "0123456789"

	letterCount = 5
	digitCount  = 5
)

// Random выдаёт номера вида RTYER87012 из 26^5 * 10^5 вариантов.
// Уникальность не проверяется: коллизии ловит хранилище.
type Random struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandom создаёт генератор со случайным seed.
func NewRandom() *Random {
	return &Random{rnd: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewSeeded создаёт генератор с фиксированным seed, последовательность воспроизводима.
func NewSeeded(seed1, seed2 uint64) *Random {
	return &Random{rnd: rand.New(rand.NewPCG(seed1, seed2))}
}

// Generate возвращает очередной номер заказа.
func (r *Random) Generate() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	b.Grow(letterCount + digitCount)
	for range letterCount {
		b.WriteByte(letters[r.rnd.IntN(len(letters))])
	}
	for range digitCount {
		b.WriteByte(digits[r.rnd.IntN(len(digits))])
	}
	return b.String()
}

// Sequence выдаёт заранее заданные номера по кругу. Используется в тестах
// для детерминированных сценариев, в том числе с коллизиями.
type Sequence struct {
	mu      sync.Mutex
	numbers []string
	next    int
	calls   int
}

// NewSequence создаёт генератор из фиксированного списка номеров.
func NewSequence(numbers ...string) *Sequence {
	return &Sequence{numbers: append([]string(nil), numbers...)}
}

// Generate возвращает следующий номер из списка.
func (s *Sequence) Generate() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if len(s.numbers) == 0 {
		return ""
	}
	number := s.numbers[s.next%len(s.numbers)]
	s.next++
	return number
}

// Calls возвращает количество вызовов Generate.
func (s *Sequence) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var (
	_ domain.OrderNumberGenerator = (*Random)(nil)
	_ domain.OrderNumberGenerator = (*Sequence)(nil)
)
