/*
Package hashring implements consistent hashing hashring data structure.

In general, consistent hashing is all about mapping of object from a very big
set of values (e.g. request id) to object from a quite small set (e.g. server
name). The word "consistent" means that it can produce consistent mapping on
different machines or processes without additional state exchange and
communication, and that only a small share of objects is remapped when the set
of servers changes.

Each node is placed on the ring as a fixed number of "virtual" points: i-th
point of node "foo" sits at hash("foo-i"). An object belongs to the node owning
the first point at or after the object's hash, wrapping around to the first
point of the ring when there is no such point.

There are two goals for this hashring implementation:
1) To be efficient in highly concurrent applications by blocking read
operations for the least possible time.
2) To correctly handle very rare but yet possible hash collisions, which may
break all your eventually consistent application.

To reach the first goal hashring uses immutable AVL tree internally, making
read operations (getting node for key) blocked only for a tiny amount of
time needed to swap the ring's tree root after some write operation (insertion
or deletion of a node).

The second goal is reached by moving every collided point to its next
"generation" value instead of letting one of them win. Thus the layout of the
ring depends only on the set of nodes, not on the order in which they were
added or removed.
*/
package hashring
