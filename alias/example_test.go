package alias_test

import (
	"fmt"

	"github.com/zephyrtronium/vose/alias"
	"github.com/zephyrtronium/vose/variate"
)

func Example() {
	tab, err := alias.New([]uint32{1, 2, 3, 4})
	if err != nil {
		panic(err)
	}
	fmt.Println(tab.Len(), tab.Total())

	// Variates come from outside the table.
	r := variate.New(1, 2)
	counts := make([]int, tab.Len())
	for range 100000 {
		x, y := variate.Draw(r, tab.Len(), tab.Total())
		i, err := tab.Sample(x, y)
		if err != nil {
			panic(err)
		}
		counts[i]++
	}
	for i, c := range counts {
		// Round to the nearest percent.
		fmt.Printf("%d: %d%%\n", i, (c+500)/1000)
	}

	// Output:
	// 4 10
	// 0: 10%
	// 1: 20%
	// 2: 30%
	// 3: 40%
}

func ExampleTable_Slot() {
	tab, err := alias.New([]uint{1, 2, 3, 4})
	if err != nil {
		panic(err)
	}
	for i := range tab.Len() {
		u, k, ok := tab.Slot(i)
		if ok {
			fmt.Printf("slot %d: %d below %d, else %d\n", i, i, u, k)
		} else {
			fmt.Printf("slot %d: always %d\n", i, i)
		}
	}

	// Output:
	// slot 0: 0 below 4, else 3
	// slot 1: 1 below 8, else 2
	// slot 2: always 2
	// slot 3: always 3
}
